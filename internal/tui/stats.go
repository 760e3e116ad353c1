package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/taskr/internal/store"
)

const statsDays = 7

type statsModel struct {
	store  *store.Store
	now    func() time.Time
	width  int
	height int

	days   []store.DailyFocus
	offset int // weeks back from the current 7 days

	chart barchart.Model
}

func newStatsModel(s *store.Store, now func() time.Time) statsModel {
	return statsModel{
		store: s,
		now:   now,
		chart: barchart.New(60, 12),
	}
}

func (m *statsModel) setSize(w, h int) {
	m.width = w
	m.height = h
}

type statsDataMsg struct {
	days []store.DailyFocus
	err  error
}

func (m statsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		from, to := m.dateRange()
		days, err := m.store.DailyFocus(from, to)
		return statsDataMsg{days: days, err: err}
	}
}

// dateRange covers statsDays UTC days ending today, shifted back by offset
// weeks. DailyFocus groups by UTC day.
func (m statsModel) dateRange() (time.Time, time.Time) {
	now := m.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := today.AddDate(0, 0, 1-statsDays*m.offset)
	return end.AddDate(0, 0, -statsDays), end
}

func (m statsModel) update(msg tea.Msg) (statsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case statsDataMsg:
		if msg.err != nil {
			return m, func() tea.Msg { return errStatus("Load stats", msg.err) }
		}
		m.days = msg.days
		m.buildChart()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Left):
			m.offset++
			return m, m.refresh()
		case key.Matches(msg, keys.Right):
			if m.offset > 0 {
				m.offset--
			}
			return m, m.refresh()
		}
	}
	return m, nil
}

// focusMinutes maps each day in range to its recorded focus minutes.
func (m statsModel) focusMinutes() []float64 {
	from, to := m.dateRange()
	byDate := make(map[string]int64, len(m.days))
	for _, d := range m.days {
		byDate[d.Date] = d.TotalSeconds
	}
	var out []float64
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		out = append(out, float64(byDate[d.Format(dateLayout)])/60)
	}
	return out
}

func (m *statsModel) buildChart() {
	chartWidth := max(m.width-8, 20)
	chartHeight := 12
	if m.height > 30 {
		chartHeight = 16
	}
	m.chart = barchart.New(chartWidth, chartHeight)

	from, _ := m.dateRange()
	style := lipgloss.NewStyle().Foreground(colorFocus)
	var bars []barchart.BarData
	for i, minutes := range m.focusMinutes() {
		bars = append(bars, barchart.BarData{
			Label:  from.AddDate(0, 0, i).Format("Mon 02"),
			Values: []barchart.BarValue{{Name: "focus", Value: minutes, Style: style}},
		})
	}
	m.chart.PushAll(bars)
	m.chart.Draw()
}

func (m statsModel) totals() (secs int64, rounds int) {
	for _, d := range m.days {
		secs += d.TotalSeconds
		rounds += d.Rounds
	}
	return secs, rounds
}

func (m statsModel) view() string {
	w := m.width - 4
	from, to := m.dateRange()
	label := mutedStyle.Render(fmt.Sprintf("%s - %s", from.Format("Jan 02"), to.AddDate(0, 0, -1).Format("Jan 02, 2006")))
	header := lipgloss.JoinHorizontal(lipgloss.Bottom, titleStyle.Render("Focus minutes per day"), "  ", label)

	secs, rounds := m.totals()
	summary := fmt.Sprintf("  Total %s in %d rounds", formatMinutes(secs), rounds)

	var rows []string
	if len(m.days) == 0 {
		rows = append(rows, mutedStyle.Render("  No focus time recorded in this period"))
	} else {
		rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-12s %8s %7s", "Date", "Focus", "Rounds")))
		rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 29))))
		for _, d := range m.days {
			rows = append(rows, fmt.Sprintf("  %-12s %8s %7d", d.Date, formatMinutes(d.TotalSeconds), d.Rounds))
		}
	}

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
		header, "", m.chart.View(), "", summary, "", strings.Join(rows, "\n"), "",
		mutedStyle.Render("  ←/→: older/newer week"),
	))
}
