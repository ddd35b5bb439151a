package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// exportCSV flattens the scoreboard into one row per aggregated label.
func exportCSV(data ScoreboardData, filename string) (*Result, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"initiative", "category", "label", "value"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, initiative := range data.Initiatives {
		for _, category := range initiative.Categories {
			for _, total := range category.Totals {
				record := []string{initiative.Name, category.Name, total.Label, strconv.Itoa(total.Value)}
				if err := writer.Write(record); err != nil {
					return nil, fmt.Errorf("write csv row: %w", err)
				}
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: filename + ".csv",
		MimeType: "text/csv",
	}, nil
}
