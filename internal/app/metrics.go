package app

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"impactboard/api/internal/store"
)

// Category is one of the three fixed metric groupings.
type Category string

const (
	CategoryPeople Category = "People"
	CategoryPlace  Category = "Place"
	CategoryPolicy Category = "Policy"
)

// categoryOrder fixes the closed category set and its traversal order.
var categoryOrder = [...]Category{CategoryPeople, CategoryPlace, CategoryPolicy}

var validCategories = map[Category]struct{}{
	CategoryPeople: {},
	CategoryPlace:  {},
	CategoryPolicy: {},
}

const dateLayout = "2006-01-02"

// FlexValue carries a metric value that clients may submit as a JSON
// number or a string. It round-trips: numeric content marshals back as
// a number.
type FlexValue string

func (v *FlexValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*v = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = FlexValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("value must be a number or string")
	}
	*v = FlexValue(n.String())
	return nil
}

func (v FlexValue) MarshalJSON() ([]byte, error) {
	s := string(v)
	// strconv alone is too permissive here: it accepts "NaN", "Inf",
	// "+5", and hex floats, none of which are JSON number syntax.
	if s != "" && json.Valid([]byte(s)) {
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			return []byte(s), nil
		}
	}
	return json.Marshal(s)
}

// MetricValueInput is one dated observation submitted for a label.
type MetricValueInput struct {
	Value FlexValue `json:"value"`
	Date  string    `json:"date,omitempty"`
	Notes string    `json:"notes,omitempty"`
}

// MetricEntryInput is one labeled series within a category.
type MetricEntryInput struct {
	Label            string             `json:"label"`
	Values           []MetricValueInput `json:"values"`
	ShowInScoreboard *bool              `json:"showInScoreboard,omitempty"`
}

// CategorizedMetrics maps People/Place/Policy to their entries.
type CategorizedMetrics map[Category][]MetricEntryInput

func validateMetrics(metrics CategorizedMetrics) error {
	for category, entries := range metrics {
		if _, ok := validCategories[category]; !ok {
			return validationError(fmt.Sprintf("unknown metric category %q", category))
		}
		for _, entry := range entries {
			if strings.TrimSpace(entry.Label) == "" {
				return validationError(fmt.Sprintf("metric label is required in category %s", category))
			}
			if len(entry.Values) == 0 {
				return validationError(fmt.Sprintf("metric %q needs at least one value", entry.Label))
			}
			for _, value := range entry.Values {
				if value.Date == "" {
					continue
				}
				if _, err := time.Parse(dateLayout, value.Date); err != nil {
					return validationError(fmt.Sprintf("metric %q has invalid date %q, want YYYY-MM-DD", entry.Label, value.Date))
				}
			}
		}
	}
	return nil
}

// flattenMetrics expands the categorized input into the replacement row
// set for one initiative. Categories traverse in fixed order so the
// stored row order is deterministic.
func flattenMetrics(initiativeID int64, metrics CategorizedMetrics, now time.Time) []store.Metric {
	rows := make([]store.Metric, 0)
	for _, category := range categoryOrder {
		for _, entry := range metrics[category] {
			show := true
			if entry.ShowInScoreboard != nil {
				show = *entry.ShowInScoreboard
			}
			for _, value := range entry.Values {
				recorded := now
				if value.Date != "" {
					if parsed, err := time.Parse(dateLayout, value.Date); err == nil {
						recorded = parsed
					}
				}
				rows = append(rows, store.Metric{
					InitiativeID:     initiativeID,
					Label:            strings.TrimSpace(entry.Label),
					Value:            string(value.Value),
					Category:         string(category),
					DateRecorded:     recorded,
					Notes:            value.Notes,
					ShowInScoreboard: show,
				})
			}
		}
	}
	return rows
}

// LabelTotal is one aggregated scoreboard entry.
type LabelTotal struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// aggregateScoreboard sums values per (category, label). Entries keep
// the insertion order of each label's first occurrence. Non-numeric
// values contribute 0.
func aggregateScoreboard(rows []store.Metric) map[Category][]LabelTotal {
	out := make(map[Category][]LabelTotal, len(categoryOrder))
	for _, category := range categoryOrder {
		out[category] = []LabelTotal{}
	}
	index := make(map[Category]map[string]int)

	for _, row := range rows {
		category := Category(row.Category)
		if _, ok := validCategories[category]; !ok {
			continue
		}
		if index[category] == nil {
			index[category] = make(map[string]int)
		}
		i, seen := index[category][row.Label]
		if !seen {
			out[category] = append(out[category], LabelTotal{Label: row.Label})
			i = len(out[category]) - 1
			index[category][row.Label] = i
		}
		out[category][i].Value += numericValue(row.Value)
	}
	return out
}

func numericValue(raw string) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return parsed
}

// MetricObservation is one stored observation in a fetch response.
type MetricObservation struct {
	Value FlexValue `json:"value"`
	Date  string    `json:"date"`
	Notes string    `json:"notes"`
}

// MetricGroup is a label with all of its observations.
type MetricGroup struct {
	Label            string              `json:"label"`
	Values           []MetricObservation `json:"values"`
	ShowInScoreboard bool                `json:"showInScoreboard"`
}

// groupMetrics reshapes stored rows into the categorized submission
// shape, preserving first-seen label order per category.
func groupMetrics(rows []store.Metric) map[Category][]MetricGroup {
	out := make(map[Category][]MetricGroup, len(categoryOrder))
	for _, category := range categoryOrder {
		out[category] = []MetricGroup{}
	}
	index := make(map[Category]map[string]int)

	for _, row := range rows {
		category := Category(row.Category)
		if _, ok := validCategories[category]; !ok {
			continue
		}
		if index[category] == nil {
			index[category] = make(map[string]int)
		}
		i, seen := index[category][row.Label]
		if !seen {
			out[category] = append(out[category], MetricGroup{
				Label:            row.Label,
				Values:           []MetricObservation{},
				ShowInScoreboard: row.ShowInScoreboard,
			})
			i = len(out[category]) - 1
			index[category][row.Label] = i
		}
		out[category][i].Values = append(out[category][i].Values, MetricObservation{
			Value: FlexValue(row.Value),
			Date:  row.DateRecorded.Format(dateLayout),
			Notes: row.Notes,
		})
	}
	return out
}
