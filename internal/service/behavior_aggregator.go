package service

import "github.com/noah-isme/sma-schedule-engine/internal/models"

// SummarizeBehavior totals points and counts records by sign. Zero-point records land in neither bucket.
func SummarizeBehavior(records []models.BehaviorRecord) models.BehaviorSummary {
	var summary models.BehaviorSummary
	for _, rec := range records {
		summary.TotalPoints += rec.Points
		switch {
		case rec.Points > 0:
			summary.PositiveCount++
		case rec.Points < 0:
			summary.NegativeCount++
		}
	}
	return summary
}
