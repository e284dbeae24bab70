package services

import (
	"math"

	"github.com/paulexconde/surveypulse/internal/models"
	"github.com/paulexconde/surveypulse/internal/pkg/fault"
)

// Turns raw funnel rows into a normalized snapshot and derives the funnel
// percentages from it.
type StatsService interface {
	// Aggregate builds a snapshot from the funnel rows of one survey.
	// dismissedAndSentOverlap is the number of actors who both dismissed
	// and later completed; their dismissals are partial responses, not
	// real dismissals. Returns fault.ErrNoData when no rows were supplied
	// at all, which is not the same as an all-zero snapshot.
	Aggregate(rows []models.FunnelRow, dismissedAndSentOverlap int) (*models.FunnelSnapshot, error)
	// Rates derives the funnel percentages. A snapshot that was never
	// shown yields the all-zero RateSet as the agreed display default.
	Rates(snapshot *models.FunnelSnapshot) models.RateSet
}

type statsServiceImpl struct{}

// Instantiate the StatsService.
func NewStatsService() StatsService {
	return &statsServiceImpl{}
}

func (s *statsServiceImpl) Aggregate(rows []models.FunnelRow, dismissedAndSentOverlap int) (*models.FunnelSnapshot, error) {
	if len(rows) == 0 {
		return nil, fault.ErrNoData
	}

	// Kinds absent from the rows keep their zero/null seed.
	snapshot := &models.FunnelSnapshot{}

	for _, row := range rows {
		stat := models.EventStat{
			TotalCount:    row.TotalCount,
			UniquePersons: row.UniquePersons,
			FirstSeen:     row.FirstSeen,
			LastSeen:      row.LastSeen,
		}

		switch row.Event {
		case models.EventShown:
			snapshot.Shown = stat
		case models.EventDismissed:
			snapshot.Dismissed = stat
		case models.EventSent:
			snapshot.Sent = stat
		}
	}

	// Actors who eventually completed should not inflate the dismissal
	// unique count.
	snapshot.Dismissed.UniquePersons = clampZero(snapshot.Dismissed.UniquePersons - dismissedAndSentOverlap)

	// Actors and occurrences that only ever saw the survey. The funnel
	// rows and the overlap count come from separately issued queries, so
	// timing skew can make these go negative; clamp rather than repair.
	snapshot.Shown.UniquePersonsOnlySeen = clampZero(
		snapshot.Shown.UniquePersons - snapshot.Dismissed.UniquePersons - snapshot.Sent.UniquePersons,
	)
	snapshot.Shown.TotalCountOnlySeen = clampZero(
		snapshot.Shown.TotalCount - snapshot.Dismissed.TotalCount - snapshot.Sent.TotalCount,
	)

	return snapshot, nil
}

func (s *statsServiceImpl) Rates(snapshot *models.FunnelSnapshot) models.RateSet {
	if snapshot == nil || snapshot.Shown.TotalCount == 0 {
		return models.RateSet{}
	}

	return models.RateSet{
		ResponseRate:               rate(snapshot.Sent.TotalCount, snapshot.Shown.TotalCount),
		DismissalRate:              rate(snapshot.Dismissed.TotalCount, snapshot.Shown.TotalCount),
		UniquePersonsResponseRate:  rate(snapshot.Sent.UniquePersons, snapshot.Shown.UniquePersons),
		UniquePersonsDismissalRate: rate(snapshot.Dismissed.UniquePersons, snapshot.Shown.UniquePersons),
	}
}

// rate is numerator over denominator as a percentage, two decimal places,
// standard rounding.
func rate(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return math.Round(float64(numerator)/float64(denominator)*100*100) / 100
}

func clampZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
