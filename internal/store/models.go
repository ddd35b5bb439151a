package store

import "time"

type Program struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

type Initiative struct {
	ID           int64
	ProgramID    int64
	Name         string
	Description  string
	ImageURL     string
	ModeServe    bool
	ModeEducate  bool
	ModeAdvocate bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Metric is one dated observation for an initiative. Several rows may
// share a label; the scoreboard sums them per (category, label).
type Metric struct {
	ID               int64
	InitiativeID     int64
	Label            string
	Value            string
	Category         string
	DateRecorded     time.Time
	Notes            string
	ShowInScoreboard bool
}
