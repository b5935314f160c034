package models

import "sort"

// Extremes pairs the best and worst performers. Both are nil for an empty class.
type Extremes struct {
	Best  *RecordView `json:"best"`
	Worst *RecordView `json:"worst"`
}

// RankedRecord is a record with its standing by overall percentage.
// Equal percentages share a rank.
type RankedRecord struct {
	Rank int `json:"rank"`
	RecordView
}

// ClassReport bundles every read model for a single version of the store.
type ClassReport struct {
	Version      uint64            `json:"version"`
	Summary      ClassSummary      `json:"summary"`
	Extremes     Extremes          `json:"extremes"`
	Distribution GradeDistribution `json:"distribution"`
	Ranking      []RankedRecord    `json:"ranking"`
}

// SummarizeClass averages overall percentages. An empty slice yields the
// "No students" sentinel.
func SummarizeClass(records []StudentRecord) ClassSummary {
	if len(records) == 0 {
		return ClassSummary{Empty: true, Message: NoStudentsMessage}
	}
	var total float64
	for _, rec := range records {
		total += rec.OverallPercent()
	}
	return ClassSummary{
		Count:   len(records),
		Average: RoundPercent(total / float64(len(records))),
	}
}

// DistributeGrades counts records per letter; every letter is present.
func DistributeGrades(records []StudentRecord) GradeDistribution {
	dist := make(GradeDistribution, len(Grades))
	for _, g := range Grades {
		dist[g] = 0
	}
	for _, rec := range records {
		dist[rec.Grade()]++
	}
	return dist
}

// ExtremeIndex returns the position of the highest (max) or lowest (min)
// overall percentage, or -1 when records is empty. Ties keep the earliest.
func ExtremeIndex(records []StudentRecord, mode ExtremeMode) int {
	if len(records) == 0 {
		return -1
	}
	best := 0
	bestPct := records[0].OverallPercent()
	for i := 1; i < len(records); i++ {
		pct := records[i].OverallPercent()
		if (mode == ExtremeMax && pct > bestPct) || (mode == ExtremeMin && pct < bestPct) {
			best, bestPct = i, pct
		}
	}
	return best
}

// RankRecords orders a copy of records by overall percentage, highest first.
// Records with equal percentages keep their list order and share a rank.
func RankRecords(records []StudentRecord) []RankedRecord {
	views := Views(records)
	ranked := make([]RankedRecord, len(views))
	for i := range views {
		ranked[i] = RankedRecord{RecordView: views[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].OverallPercent > ranked[j].OverallPercent
	})
	for i := range ranked {
		if i > 0 && ranked[i].OverallPercent == ranked[i-1].OverallPercent {
			ranked[i].Rank = ranked[i-1].Rank
			continue
		}
		ranked[i].Rank = i + 1
	}
	return ranked
}
