package service

import (
	"math"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
)

// SummarizeAttendance folds a set of statuses into counts and a presence percentage.
// Late and online_present count toward presence while still being tracked on their own.
func SummarizeAttendance(statuses []models.AttendanceStatus) models.AttendanceSummary {
	var summary models.AttendanceSummary
	summary.Total = len(statuses)
	for _, status := range statuses {
		if status.CountsAsPresent() {
			summary.Present++
		}
		switch status {
		case models.AttendanceLate:
			summary.Late++
		case models.AttendanceAbsent:
			summary.Absent++
		case models.AttendanceExcused:
			summary.Excused++
		case models.AttendanceUnmarked, "":
			summary.Unmarked++
		}
	}
	if summary.Total > 0 {
		summary.Percentage = roundTo2(float64(summary.Present) / float64(summary.Total) * 100)
	}
	return summary
}

// SummarizeRows summarises an attendance view.
func SummarizeRows(rows []models.AttendanceRow) models.AttendanceSummary {
	statuses := make([]models.AttendanceStatus, len(rows))
	for i, row := range rows {
		statuses[i] = row.Status
	}
	return SummarizeAttendance(statuses)
}

// BuildLessonView lays explicit marks over the roster. Roster students without a mark are
// synthesized as absent; marks for students no longer on the roster are kept.
func BuildLessonView(roster []string, records []models.LessonAttendance) []models.AttendanceRow {
	byStudent := make(map[string]models.LessonAttendance, len(records))
	for _, rec := range records {
		byStudent[rec.StudentID] = rec
	}
	rows := make([]models.AttendanceRow, 0, len(roster)+len(records))
	seen := make(map[string]struct{}, len(roster))
	for _, studentID := range roster {
		if _, dup := seen[studentID]; dup {
			continue
		}
		seen[studentID] = struct{}{}
		if rec, ok := byStudent[studentID]; ok {
			rows = append(rows, recordRow(rec))
			continue
		}
		rows = append(rows, models.AttendanceRow{StudentID: studentID, Status: models.AttendanceAbsent, Synthesized: true})
	}
	for _, rec := range records {
		if _, ok := seen[rec.StudentID]; ok {
			continue
		}
		rows = append(rows, recordRow(rec))
	}
	return rows
}

// BuildSessionView reports only what was explicitly recorded.
func BuildSessionView(records []models.LessonAttendance) []models.AttendanceRow {
	rows := make([]models.AttendanceRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, recordRow(rec))
	}
	return rows
}

func recordRow(rec models.LessonAttendance) models.AttendanceRow {
	markedAt := rec.MarkedAt
	return models.AttendanceRow{StudentID: rec.StudentID, Status: rec.Status, Note: rec.Note, MarkedAt: &markedAt}
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
