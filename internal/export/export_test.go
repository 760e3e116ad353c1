package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sadopc/taskr/internal/store"
)

func sampleData() ([]store.Task, map[int64]*store.Group) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.Local)
	work := int64(1)
	missing := int64(999)

	tasks := []store.Task{
		{
			ID:          1,
			RemoteID:    "r-1",
			Title:       "Write report",
			Description: "quarterly numbers",
			Date:        day.UnixMilli(),
			TimeStart:   day.Add(9 * time.Hour).UnixMilli(),
			TimeEnd:     day.Add(10 * time.Hour).UnixMilli(),
			GroupID:     &work,
		},
		{
			ID:          2,
			RemoteID:    "r-2",
			Title:       "Buy milk",
			IsCompleted: true,
		},
		{
			ID:       3,
			RemoteID: "r-3",
			Title:    "Surprise party",
			IsSecret: true,
			GroupID:  &missing,
		},
	}
	groups := map[int64]*store.Group{
		1: {ID: 1, Name: "Work", Color: "#FF0000"},
	}
	return tasks, groups
}

func TestRecords(t *testing.T) {
	tasks, groups := sampleData()
	recs := Records(tasks, groups, false)
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}

	r := recs[0]
	if r.ID != "r-1" || r.Group != "Work" || r.Date != "2026-03-02" {
		t.Errorf("record 0 = %+v", r)
	}
	if _, err := time.Parse(time.RFC3339, r.Start); err != nil {
		t.Errorf("start is not RFC3339: %q", r.Start)
	}
	if recs[1].Group != "" || recs[1].Start != "" || !recs[1].Completed {
		t.Errorf("ungrouped task without times: %+v", recs[1])
	}
	if recs[2].Group != "Unknown" {
		t.Errorf("missing group should be Unknown, got %q", recs[2].Group)
	}
}

func TestRecordsHideSecret(t *testing.T) {
	tasks, groups := sampleData()
	recs := Records(tasks, groups, true)
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	for _, r := range recs {
		if r.Secret {
			t.Errorf("secret task exported: %+v", r)
		}
	}
}

// ============================================================
// CSV
// ============================================================

func TestToCSV(t *testing.T) {
	tasks, groups := sampleData()
	path := filepath.Join(t.TempDir(), "test.csv")

	if err := ToCSV(Records(tasks, groups, false), path); err != nil {
		t.Fatalf("ToCSV: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 4 {
		t.Fatalf("expected 4 rows (1 header + 3 data), got %d", len(records))
	}
	expectedHeader := []string{"ID", "Title", "Group", "Date", "Start", "End", "Completed", "Secret", "Description"}
	for i, h := range expectedHeader {
		if records[0][i] != h {
			t.Fatalf("header[%d] = %q, want %q", i, records[0][i], h)
		}
	}
	row := records[1]
	if row[1] != "Write report" || row[2] != "Work" || row[8] != "quarterly numbers" {
		t.Fatalf("row = %v", row)
	}
	if records[2][6] != "true" {
		t.Fatalf("completed = %q", records[2][6])
	}
}

func TestToCSVEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := ToCSV(nil, path); err != nil {
		t.Fatal(err)
	}
	f, _ := os.Open(path)
	defer f.Close()
	records, _ := csv.NewReader(f).ReadAll()
	if len(records) != 1 {
		t.Fatalf("expected header only, got %d rows", len(records))
	}
}

func TestToCSVBadPath(t *testing.T) {
	if err := ToCSV(nil, "/nonexistent/dir/file.csv"); err == nil {
		t.Fatal("expected error for bad path")
	}
}

func TestToCSVSpecialCharacters(t *testing.T) {
	recs := []Record{{ID: "x", Title: `say "hi", then leave`, Group: `Group "Special"`}}
	path := filepath.Join(t.TempDir(), "special.csv")
	if err := ToCSV(recs, path); err != nil {
		t.Fatal(err)
	}
	f, _ := os.Open(path)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("CSV should be valid even with special chars: %v", err)
	}
	if records[1][1] != `say "hi", then leave` || records[1][2] != `Group "Special"` {
		t.Fatalf("fields mangled: %v", records[1])
	}
}

// ============================================================
// JSON
// ============================================================

func TestToJSON(t *testing.T) {
	tasks, groups := sampleData()
	path := filepath.Join(t.TempDir(), "test.json")
	if err := ToJSON(Records(tasks, groups, false), path); err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if doc.Count != 3 || len(doc.Tasks) != 3 {
		t.Fatalf("count = %d, tasks = %d", doc.Count, len(doc.Tasks))
	}
	if _, err := time.Parse(time.RFC3339, doc.ExportedAt); err != nil {
		t.Fatalf("exported_at is not RFC3339: %q", doc.ExportedAt)
	}
	if doc.Tasks[0].Title != "Write report" {
		t.Fatalf("title = %q", doc.Tasks[0].Title)
	}
	if !strings.Contains(string(data), "\n  ") {
		t.Fatal("JSON should be indented")
	}
}

func TestToJSONBadPath(t *testing.T) {
	if err := ToJSON(nil, "/nonexistent/dir/file.json"); err == nil {
		t.Fatal("expected error for bad path")
	}
}

// ============================================================
// YAML
// ============================================================

func TestToYAML(t *testing.T) {
	tasks, groups := sampleData()
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := ToYAML(Records(tasks, groups, true), path); err != nil {
		t.Fatalf("ToYAML: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if doc.Count != 2 || doc.Tasks[1].Title != "Buy milk" {
		t.Fatalf("doc = %+v", doc)
	}
}

// ============================================================
// Formats
// ============================================================

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path   string
		want   string
		wantOK bool
	}{
		{"out.csv", "csv", true},
		{"out.JSON", "json", true},
		{"out.yml", "yaml", true},
		{"out.yaml", "yaml", true},
		{"out.txt", "", false},
		{"out", "", false},
	}
	for _, tt := range tests {
		got, ok := FormatFromPath(tt.path)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("FormatFromPath(%q) = %q, %v", tt.path, got, ok)
		}
	}
}

func TestWriteUnknownFormat(t *testing.T) {
	if err := Write("xml", nil, filepath.Join(t.TempDir(), "x.xml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestFromStore(t *testing.T) {
	s, err := store.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	g, _ := s.CreateGroup("Home", "")
	s.CreateTask(store.TaskInput{Title: "Laundry", GroupID: &g.ID})
	s.CreateTask(store.TaskInput{Title: "Hidden", IsSecret: true})

	path := filepath.Join(t.TempDir(), "all.json")
	n, err := FromStore(s, "json", path, true)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("exported %d tasks, want 1", n)
	}

	data, _ := os.ReadFile(path)
	var doc document
	json.Unmarshal(data, &doc)
	if doc.Tasks[0].Group != "Home" {
		t.Fatalf("group = %q", doc.Tasks[0].Group)
	}
}
