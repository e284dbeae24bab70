package services

import (
	"math"

	"github.com/paulexconde/surveypulse/internal/models"
	"github.com/paulexconde/surveypulse/internal/pkg/fault"
)

// NOTE: the formula for determining the NPS
// NPS = %Promoters - %Detractors

// Buckets rating answers into sentiment classes and computes NPS scores.
//
// The bucketing rule is fixed to the 0-10 scale: callers must only feed
// true 10-scale rating data into Bucket/Score; other scales go through
// Histogram instead.
type NPSService interface {
	// Bucket classifies rating rows into promoters, passives and
	// detractors.
	Bucket(rows []models.RatingRow) models.NPSBucket
	// Score computes the NPS for one bucket, one decimal place. An empty
	// bucket is fault.ErrNoData, never zero.
	Score(bucket models.NPSBucket) (float64, error)
	// BucketsByIteration accumulates buckets per 1-indexed iteration for
	// a recurring survey, sized to iterationCount.
	BucketsByIteration(rows []models.IterationRatingRow, iterationCount int) []models.NPSBucket
	// ScoresByIteration computes the per-iteration scores. An iteration
	// with no rows scores 0; this is a display simplification, not a
	// masked error.
	ScoresByIteration(rows []models.IterationRatingRow, iterationCount int) []float64
	// Histogram buckets rows by raw rating value into an array sized to
	// the scale: 11 slots for scale 10 (values already 0-indexed), scale
	// slots otherwise (values 1-indexed, shifted down).
	Histogram(rows []models.RatingRow, scale int) []int
}

type npsServiceImpl struct{}

// Instantiate the NPSService.
func NewNPSService() NPSService {
	return &npsServiceImpl{}
}

func (s *npsServiceImpl) Bucket(rows []models.RatingRow) models.NPSBucket {
	var bucket models.NPSBucket

	for _, row := range rows {
		switch {
		case row.Rating >= 9:
			bucket.Promoters += row.Count
		case row.Rating >= 7:
			bucket.Passives += row.Count
		default:
			bucket.Detractors += row.Count
		}
	}

	return bucket
}

func (s *npsServiceImpl) Score(bucket models.NPSBucket) (float64, error) {
	total := bucket.Promoters + bucket.Passives + bucket.Detractors
	if total == 0 {
		return 0, fault.ErrNoData
	}

	promoterCalc := (float64(bucket.Promoters) / float64(total)) * 100
	detractorCalc := (float64(bucket.Detractors) / float64(total)) * 100

	return math.Round((promoterCalc-detractorCalc)*10) / 10, nil
}

func (s *npsServiceImpl) BucketsByIteration(rows []models.IterationRatingRow, iterationCount int) []models.NPSBucket {
	buckets := make([]models.NPSBucket, iterationCount)

	for _, row := range rows {
		if row.Iteration < 1 || row.Iteration > iterationCount {
			continue
		}
		b := &buckets[row.Iteration-1]

		switch {
		case row.Rating >= 9:
			b.Promoters += row.Count
		case row.Rating >= 7:
			b.Passives += row.Count
		default:
			b.Detractors += row.Count
		}
	}

	return buckets
}

func (s *npsServiceImpl) ScoresByIteration(rows []models.IterationRatingRow, iterationCount int) []float64 {
	buckets := s.BucketsByIteration(rows, iterationCount)
	scores := make([]float64, iterationCount)

	for i, bucket := range buckets {
		score, err := s.Score(bucket)
		if err != nil {
			// Empty iteration displays as 0.
			continue
		}
		scores[i] = score
	}

	return scores
}

func (s *npsServiceImpl) Histogram(rows []models.RatingRow, scale int) []int {
	slots := scale
	if scale == 10 {
		slots = 11
	}
	if slots <= 0 {
		return nil
	}

	hist := make([]int, slots)
	for _, row := range rows {
		idx := row.Rating
		if scale != 10 {
			idx--
		}
		if idx < 0 || idx >= slots {
			continue
		}
		hist[idx] += row.Count
	}

	return hist
}
