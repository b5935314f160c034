package models

// SortField names a column the record list can be ordered by.
type SortField string

const (
	SortByCode       SortField = "code"
	SortByName       SortField = "name"
	SortByCoursework SortField = "coursework"
	SortByExam       SortField = "exam"
	SortByPercent    SortField = "percent"
	SortByGrade      SortField = "grade"
)

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortRequest is the payload for reordering the store.
type SortRequest struct {
	Field     SortField     `json:"field" binding:"required"`
	Direction SortDirection `json:"direction"`
}

// ExtremeMode selects the best or worst performer.
type ExtremeMode string

const (
	ExtremeMax ExtremeMode = "max"
	ExtremeMin ExtremeMode = "min"
)

// SearchKind reports which rule produced a search result.
type SearchKind string

const (
	SearchByCode    SearchKind = "code"
	SearchByName    SearchKind = "name"
	SearchByPartial SearchKind = "partial"
)

// SearchResult holds the matches for a query.
type SearchResult struct {
	Query   string          `json:"query"`
	Kind    SearchKind      `json:"kind"`
	Records []StudentRecord `json:"records"`
}

// NoStudentsMessage is the summary sentinel shown for an empty store.
const NoStudentsMessage = "No students"

// ClassSummary aggregates overall percentages across the class.
type ClassSummary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Empty   bool    `json:"empty"`
	Message string  `json:"message,omitempty"`
}

// GradeDistribution counts records per letter grade.
type GradeDistribution map[Grade]int

// LoadResult describes the outcome of reading a record source.
type LoadResult struct {
	Source    string          `json:"source"`
	Records   []StudentRecord `json:"-"`
	Loaded    int             `json:"loaded"`
	Corrupted int             `json:"corrupted"`
}

// ReloadRequest optionally re-points the store at another source.
type ReloadRequest struct {
	Source string `json:"source"`
}
