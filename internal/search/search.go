package search

// Result is a single initiative hit returned to the caller.
type Result struct {
	ID        string `json:"id"`
	ProgramID int64  `json:"programId"`
	Name      string `json:"name"`
	Snippet   string `json:"snippet"`
	ImageURL  string `json:"imageUrl"`
}

// Query describes a search request.
type Query struct {
	Text      string
	ProgramID int64 // 0 = all programs
	Limit     int
	Offset    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over initiatives.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// InitiativeRecord is the data we index for an initiative.
type InitiativeRecord struct {
	ID          string `json:"id"`
	ProgramID   int64  `json:"programId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}
