package models

import "math"

// Mark bounds enforced on create and edit.
const (
	CourseworkMin = 0
	CourseworkMax = 20
	ExamMin       = 0
	ExamMax       = 100

	// MaxTotalMarks is three coursework pieces plus the exam.
	MaxTotalMarks = 3*CourseworkMax + ExamMax
)

// Grade is the letter assigned from an overall percentage.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// Grades lists every letter from best to worst.
var Grades = []Grade{GradeA, GradeB, GradeC, GradeD, GradeF}

// StudentRecord is one student's marks as persisted in the data file.
type StudentRecord struct {
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
	CW1  int    `db:"cw1" json:"cw1"`
	CW2  int    `db:"cw2" json:"cw2"`
	CW3  int    `db:"cw3" json:"cw3"`
	Exam int    `db:"exam" json:"exam"`
}

// CourseworkTotal sums the three coursework marks.
func (r StudentRecord) CourseworkTotal() int {
	return r.CW1 + r.CW2 + r.CW3
}

// OverallPercent is coursework plus exam over 160, rounded to two decimals.
func (r StudentRecord) OverallPercent() float64 {
	total := r.CourseworkTotal() + r.Exam
	return RoundPercent(float64(total) * 100 / MaxTotalMarks)
}

// Grade derives the letter grade from OverallPercent.
func (r StudentRecord) Grade() Grade {
	return GradeFor(r.OverallPercent())
}

// View attaches the derived metrics for rendering.
func (r StudentRecord) View() RecordView {
	pct := r.OverallPercent()
	return RecordView{
		StudentRecord:   r,
		CourseworkTotal: r.CourseworkTotal(),
		OverallPercent:  pct,
		Grade:           GradeFor(pct),
	}
}

// RecordView is a StudentRecord together with its derived metrics.
type RecordView struct {
	StudentRecord
	CourseworkTotal int     `json:"coursework_total"`
	OverallPercent  float64 `json:"overall_percent"`
	Grade           Grade   `json:"grade"`
}

// Views converts records to views preserving order.
func Views(records []StudentRecord) []RecordView {
	views := make([]RecordView, 0, len(records))
	for _, r := range records {
		views = append(views, r.View())
	}
	return views
}

// GradeFor maps a percentage to a letter. Thresholds are inclusive.
func GradeFor(pct float64) Grade {
	switch {
	case pct >= 70:
		return GradeA
	case pct >= 60:
		return GradeB
	case pct >= 50:
		return GradeC
	case pct >= 40:
		return GradeD
	default:
		return GradeF
	}
}

// RoundPercent rounds to two decimal places, half to even. The rounding is
// applied to v*100 as a float, so a tie is judged on the scaled value rather
// than on the exact binary value of v.
func RoundPercent(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
