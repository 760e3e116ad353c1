package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/sadopc/taskr/internal/store"
)

func (a *app) taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks", "t"},
		Short:   "Add, list, complete and delete tasks",
	}
	cmd.AddCommand(a.taskAddCmd(), a.taskListCmd(), a.taskDoneCmd(), a.taskRmCmd())
	return cmd
}

func (a *app) taskAddCmd() *cobra.Command {
	var (
		desc, date, start, end, group string
		isSecret                      bool
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Long: `Add a task to the local list.

Examples:
  taskr task add "Write report"
  taskr task add "Standup" --start 09:30 --end 09:45
  taskr task add "Dentist" --date 2026-03-05 --start 14:00 --group Health`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			sc, err := store.ParseSchedule(a.now(), date, start, end)
			if err != nil {
				return err
			}
			in := store.TaskInput{
				Title:       strings.Join(args, " "),
				Description: desc,
				Date:        sc.Date,
				TimeStart:   sc.TimeStart,
				TimeEnd:     sc.TimeEnd,
				IsSecret:    isSecret,
			}
			if group != "" {
				g, err := findGroup(s, group)
				if err != nil {
					return err
				}
				in.GroupID = &g.ID
			}
			t, err := s.CreateTask(in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added task %d: %s\n", t.ID, t.Title)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&desc, "desc", "d", "", "description")
	f.StringVar(&date, "date", "", "day as YYYY-MM-DD (default today when a time is given)")
	f.StringVar(&start, "start", "", "start time as HH:MM")
	f.StringVar(&end, "end", "", "end time as HH:MM")
	f.StringVarP(&group, "group", "g", "", "group name or id")
	f.BoolVar(&isSecret, "secret", false, "hide the task while secret mode is on")
	return cmd
}

func (a *app) taskListCmd() *cobra.Command {
	var (
		today, hideDone bool
		group, search   string
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			filter := store.TaskFilter{
				HideCompleted: hideDone,
				HideSecret:    a.hideSecret(s),
				Search:        search,
			}
			if today {
				filter.Date = store.StartOfDay(a.now())
			}
			if group != "" {
				g, err := findGroup(s, group)
				if err != nil {
					return err
				}
				filter.GroupID = &g.ID
			}
			tasks, err := s.ListTasks(filter)
			if err != nil {
				return err
			}
			groups, err := s.ListGroups(false)
			if err != nil {
				return err
			}
			writeTasks(cmd.OutOrStdout(), tasks, groups)
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&today, "today", false, "only tasks dated today")
	f.BoolVar(&hideDone, "pending", false, "leave out completed tasks")
	f.StringVarP(&group, "group", "g", "", "only tasks in this group (name or id)")
	f.StringVarP(&search, "search", "s", "", "match title or description")
	return cmd
}

func writeTasks(w io.Writer, tasks []store.Task, groups []store.Group) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks.")
		return
	}
	names := make(map[int64]string, len(groups))
	for _, g := range groups {
		names[g.ID] = g.Name
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "", "TITLE", "DATE", "TIME", "GROUP")
	for _, task := range tasks {
		done := " "
		if task.IsCompleted {
			done = "x"
		}
		group := ""
		if task.GroupID != nil {
			group = names[*task.GroupID]
		}
		t.Row(strconv.FormatInt(task.ID, 10), done, task.Title, day(task.Date), span(task), group)
	}
	fmt.Fprintln(w, t.Render())
}

func day(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).Format("2006-01-02")
}

func span(t store.Task) string {
	clock := func(ms int64) string {
		if ms == 0 {
			return ""
		}
		return time.UnixMilli(ms).Format("15:04")
	}
	switch {
	case t.TimeStart != 0 && t.TimeEnd != 0:
		return clock(t.TimeStart) + "-" + clock(t.TimeEnd)
	case t.TimeStart != 0:
		return clock(t.TimeStart)
	case t.TimeEnd != 0:
		return "-" + clock(t.TimeEnd)
	}
	return ""
}

func (a *app) taskDoneCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "done <id>...",
		Short: "Mark tasks completed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			ids, err := a.visibleTaskIDs(s, args)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if err := s.SetTaskCompleted(id, !undo); err != nil {
					return fmt.Errorf("task %d: %w", id, err)
				}
			}
			verb := "Completed"
			if undo {
				verb = "Reopened"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d task(s)\n", verb, len(args))
			return nil
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "mark the tasks not completed")
	return cmd
}

func (a *app) taskRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"delete"},
		Short:   "Delete tasks",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			ids, err := a.visibleTaskIDs(s, args)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if err := s.DeleteTask(id); err != nil {
					return fmt.Errorf("task %d: %w", id, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d task(s)\n", len(args))
			return nil
		},
	}
}

// visibleTaskIDs parses every argument before anything is changed. While
// secret mode hides secret tasks they are reported as not found, the same
// as in task list.
func (a *app) visibleTaskIDs(s *store.Store, args []string) ([]int64, error) {
	hide := a.hideSecret(s)
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg)
		if err != nil {
			return nil, err
		}
		if hide {
			t, err := s.GetTask(id)
			if err != nil {
				return nil, fmt.Errorf("task %d: %w", id, err)
			}
			if t.IsSecret {
				return nil, fmt.Errorf("task %d: %w", id, store.ErrNotFound)
			}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q is not a task id", s)
	}
	return id, nil
}

// ============================================================
// Groups
// ============================================================

func (a *app) groupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "group",
		Aliases: []string{"groups"},
		Short:   "Manage task groups",
	}
	cmd.AddCommand(a.groupAddCmd(), a.groupListCmd(), a.groupRmCmd())
	return cmd
}

func (a *app) groupAddCmd() *cobra.Command {
	var color string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a group",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			g, err := s.CreateGroup(strings.Join(args, " "), color)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added group %d: %s\n", g.ID, g.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&color, "color", "c", "#2A9D8F", "hex color")
	return cmd
}

func (a *app) groupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List groups",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			groups, err := s.ListGroups(false)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(groups) == 0 {
				fmt.Fprintln(w, "No groups.")
				return nil
			}
			t := table.New().Border(lipgloss.NormalBorder()).Headers("ID", "NAME", "COLOR")
			for _, g := range groups {
				t.Row(strconv.FormatInt(g.ID, 10), g.Name, g.Color)
			}
			fmt.Fprintln(w, t.Render())
			return nil
		},
	}
}

func (a *app) groupRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name|id>",
		Short: "Delete a group; its tasks are kept ungrouped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			g, err := findGroup(s, args[0])
			if err != nil {
				return err
			}
			if err := s.DeleteGroup(g.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted group %s\n", g.Name)
			return nil
		},
	}
}

// findGroup resolves a group by id or by case-insensitive name.
func findGroup(s *store.Store, ref string) (*store.Group, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.GetGroup(id)
	}
	groups, err := s.ListGroups(false)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		if strings.EqualFold(groups[i].Name, ref) {
			return &groups[i], nil
		}
	}
	return nil, fmt.Errorf("group %q: %w", ref, store.ErrNotFound)
}
