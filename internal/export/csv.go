package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

func ToCSV(tasks []Record, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"ID", "Title", "Group", "Date", "Start", "End", "Completed", "Secret", "Description"}); err != nil {
		return err
	}

	for _, r := range tasks {
		row := []string{
			r.ID,
			r.Title,
			r.Group,
			r.Date,
			r.Start,
			r.End,
			strconv.FormatBool(r.Completed),
			strconv.FormatBool(r.Secret),
			r.Description,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
