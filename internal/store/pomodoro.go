package store

import (
	"fmt"
	"strconv"
	"time"
)

func (s *Store) GetPomodoroSettings() (PomodoroSettings, error) {
	ps := DefaultPomodoroSettings()
	settings, err := s.SettingsWithPrefix("pomodoro_")
	if err != nil {
		return ps, err
	}
	for _, kv := range settings {
		switch kv.Key {
		case "pomodoro_focus":
			ps.Focus = secondsSetting(kv.Value, ps.Focus)
		case "pomodoro_short_break":
			ps.ShortBreak = secondsSetting(kv.Value, ps.ShortBreak)
		case "pomodoro_long_break":
			ps.LongBreak = secondsSetting(kv.Value, ps.LongBreak)
		case "pomodoro_rounds":
			if n, err := strconv.Atoi(kv.Value); err == nil && n > 0 {
				ps.Rounds = n
			}
		case "pomodoro_auto_start_breaks":
			ps.AutoStartBreaks = boolSetting(kv.Value, ps.AutoStartBreaks)
		case "pomodoro_auto_start_focus":
			ps.AutoStartFocus = boolSetting(kv.Value, ps.AutoStartFocus)
		case "pomodoro_overtime":
			ps.Overtime = boolSetting(kv.Value, ps.Overtime)
		}
	}
	return ps, nil
}

func (s *Store) SavePomodoroSettings(ps PomodoroSettings) error {
	if ps.Focus <= 0 || ps.ShortBreak <= 0 || ps.LongBreak <= 0 || ps.Rounds <= 0 {
		return fmt.Errorf("pomodoro durations and rounds must be positive: %w", ErrInvalid)
	}
	values := map[string]string{
		"pomodoro_focus":             strconv.Itoa(int(ps.Focus.Seconds())),
		"pomodoro_short_break":       strconv.Itoa(int(ps.ShortBreak.Seconds())),
		"pomodoro_long_break":        strconv.Itoa(int(ps.LongBreak.Seconds())),
		"pomodoro_rounds":            strconv.Itoa(ps.Rounds),
		"pomodoro_auto_start_breaks": strconv.FormatBool(ps.AutoStartBreaks),
		"pomodoro_auto_start_focus":  strconv.FormatBool(ps.AutoStartFocus),
		"pomodoro_overtime":          strconv.FormatBool(ps.Overtime),
	}
	if err := s.SetSettings(values); err != nil {
		return fmt.Errorf("save pomodoro settings: %w", err)
	}
	return nil
}

func (s *Store) AddPomodoroRecord(r PomodoroRecord) (*PomodoroRecord, error) {
	res, err := s.db.Exec(
		`INSERT INTO pomodoro_records (task_id, mode, planned, actual, completed, started_at, ended_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.TaskID, r.Mode, r.Planned, r.Actual, boolInt(r.Completed),
		r.StartedAt.UTC().Format(time.RFC3339), r.EndedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert pomodoro record: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	return &r, nil
}

func (s *Store) ListPomodoroRecords(from, to time.Time) ([]PomodoroRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, task_id, mode, planned, actual, completed, started_at, ended_at FROM pomodoro_records
		 WHERE started_at >= ? AND started_at < ? ORDER BY started_at`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("list pomodoro records: %w", err)
	}
	defer rows.Close()

	var records []PomodoroRecord
	for rows.Next() {
		var r PomodoroRecord
		var startedAt, endedAt string
		var completed int
		if err := rows.Scan(&r.ID, &r.TaskID, &r.Mode, &r.Planned, &r.Actual, &completed, &startedAt, &endedAt); err != nil {
			return nil, err
		}
		r.Completed = completed == 1
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		r.EndedAt, _ = time.Parse(time.RFC3339, endedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// DailyFocus sums recorded focus and overtime per UTC day in [from, to).
// Only focus phases that ran to zero count as rounds.
func (s *Store) DailyFocus(from, to time.Time) ([]DailyFocus, error) {
	rows, err := s.db.Query(`
		SELECT date(started_at) AS day,
		       COALESCE(SUM(actual), 0),
		       SUM(CASE WHEN mode = 'focus' AND completed = 1 THEN 1 ELSE 0 END)
		FROM pomodoro_records
		WHERE mode IN ('focus', 'overtime')
		  AND started_at >= ? AND started_at < ?
		GROUP BY day
		ORDER BY day`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("daily focus: %w", err)
	}
	defer rows.Close()

	var days []DailyFocus
	for rows.Next() {
		var d DailyFocus
		if err := rows.Scan(&d.Date, &d.TotalSeconds, &d.Rounds); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func secondsSetting(v string, fallback time.Duration) time.Duration {
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func boolSetting(v string, fallback bool) bool {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return fallback
}
