// Package export writes tasks to CSV, JSON or YAML files.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sadopc/taskr/internal/store"
)

// Record is one exported task with its group resolved to a name.
type Record struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Group       string `json:"group" yaml:"group"`
	Date        string `json:"date,omitempty" yaml:"date,omitempty"`
	Start       string `json:"start,omitempty" yaml:"start,omitempty"`
	End         string `json:"end,omitempty" yaml:"end,omitempty"`
	Completed   bool   `json:"completed" yaml:"completed"`
	Secret      bool   `json:"secret" yaml:"secret"`
}

type document struct {
	ExportedAt string   `json:"exported_at" yaml:"exported_at"`
	Count      int      `json:"count" yaml:"count"`
	Tasks      []Record `json:"tasks" yaml:"tasks"`
}

// Records converts tasks for export. Tasks without a known group get
// "Unknown"; ungrouped tasks get an empty group. With hideSecret set,
// secret tasks are left out.
func Records(tasks []store.Task, groups map[int64]*store.Group, hideSecret bool) []Record {
	out := make([]Record, 0, len(tasks))
	for _, t := range tasks {
		if hideSecret && t.IsSecret {
			continue
		}
		group := ""
		if t.GroupID != nil {
			group = "Unknown"
			if g, ok := groups[*t.GroupID]; ok {
				group = g.Name
			}
		}
		r := Record{
			ID:          t.RemoteID,
			Title:       t.Title,
			Description: t.Description,
			Group:       group,
			Completed:   t.IsCompleted,
			Secret:      t.IsSecret,
		}
		if t.Date != 0 {
			r.Date = time.UnixMilli(t.Date).Format("2006-01-02")
		}
		if t.TimeStart != 0 {
			r.Start = time.UnixMilli(t.TimeStart).Format(time.RFC3339)
		}
		if t.TimeEnd != 0 {
			r.End = time.UnixMilli(t.TimeEnd).Format(time.RFC3339)
		}
		out = append(out, r)
	}
	return out
}

func newDocument(tasks []Record) document {
	return document{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Count:      len(tasks),
		Tasks:      tasks,
	}
}

func ToJSON(tasks []Record, path string) error {
	data, err := json.MarshalIndent(newDocument(tasks), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}

func ToYAML(tasks []Record, path string) error {
	data, err := yaml.Marshal(newDocument(tasks))
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write yaml file: %w", err)
	}
	return nil
}

// Formats lists the supported format names.
var Formats = []string{"csv", "json", "yaml"}

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv", true
	case ".json":
		return "json", true
	case ".yaml", ".yml":
		return "yaml", true
	}
	return "", false
}

// Write exports tasks to path in the named format.
func Write(format string, tasks []Record, path string) error {
	switch format {
	case "csv":
		return ToCSV(tasks, path)
	case "json":
		return ToJSON(tasks, path)
	case "yaml", "yml":
		return ToYAML(tasks, path)
	}
	return fmt.Errorf("unknown export format %q", format)
}

// FromStore exports every live task in s. Secret tasks are skipped when
// hideSecret is set.
func FromStore(s *store.Store, format, path string, hideSecret bool) (int, error) {
	tasks, err := s.ListTasks(store.TaskFilter{HideSecret: hideSecret})
	if err != nil {
		return 0, err
	}
	groups, err := s.ListGroups(true)
	if err != nil {
		return 0, err
	}
	byID := make(map[int64]*store.Group, len(groups))
	for i := range groups {
		byID[groups[i].ID] = &groups[i]
	}
	recs := Records(tasks, byID, hideSecret)
	if err := Write(format, recs, path); err != nil {
		return 0, err
	}
	return len(recs), nil
}
