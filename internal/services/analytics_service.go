package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/paulexconde/surveypulse/internal/models"
	"github.com/paulexconde/surveypulse/internal/pkg/fault"
	"github.com/paulexconde/surveypulse/internal/pkg/workerpool"
)

const (
	fetchRetries    = 2
	fetchRetryDelay = 100 * time.Millisecond
)

// EventQuerier is the boundary to the event store. Implemented by
// internal/pkg/eventstore; faked in tests.
type EventQuerier interface {
	FunnelRows(ctx context.Context, surveyID int) ([]models.FunnelRow, error)
	DismissedAndSentOverlap(ctx context.Context, surveyID int) (int, error)
	RatingRows(ctx context.Context, surveyID int, addr models.ResponseAddresses) ([]models.RatingRow, error)
	IterationRatingRows(ctx context.Context, surveyID int, addr models.ResponseAddresses) ([]models.IterationRatingRow, error)
	ChoiceRows(ctx context.Context, surveyID int, addr models.ResponseAddresses) ([]models.ChoiceRow, error)
	OpenTextRows(ctx context.Context, surveyID int, addr models.ResponseAddresses, limit int) ([]models.OpenTextRow, error)
}

// Loads everything the analytics view needs for one survey: the funnel
// snapshot plus one result per question, fetched concurrently and merged by
// question index.
type AnalyticsService interface {
	LoadSurveyStats(ctx context.Context, survey *models.Survey) (*models.SurveyAnalytics, error)
}

type analyticsServiceImpl struct {
	events    EventQuerier
	stats     StatsService
	nps       NPSService
	responses ResponseService
	pool      *workerpool.WorkerPool
	log       *slog.Logger
}

// Instantiate the AnalyticsService.
func NewAnalyticsService(events EventQuerier, pool *workerpool.WorkerPool, log *slog.Logger) AnalyticsService {
	if log == nil {
		log = slog.Default()
	}
	return &analyticsServiceImpl{
		events:    events,
		stats:     NewStatsService(),
		nps:       NewNPSService(),
		responses: NewResponseService(),
		pool:      pool,
		log:       log,
	}
}

func (s *analyticsServiceImpl) LoadSurveyStats(ctx context.Context, survey *models.Survey) (*models.SurveyAnalytics, error) {
	rows, err := s.events.FunnelRows(ctx, survey.ID)
	if err != nil {
		return nil, err
	}

	overlap, err := s.events.DismissedAndSentOverlap(ctx, survey.ID)
	if err != nil {
		return nil, err
	}

	out := &models.SurveyAnalytics{Results: map[int]models.QuestionResult{}}

	snapshot, err := s.stats.Aggregate(rows, overlap)
	switch {
	case errors.Is(err, fault.ErrNoData):
		// Survey never launched; the funnel stays unavailable rather than
		// all-zero.
		s.log.Info("survey has no funnel events", "survey_id", survey.ID)
	case err != nil:
		return nil, err
	default:
		out.Funnel = snapshot
		out.Rates = s.stats.Rates(snapshot)
	}

	// One fetch per question, merged into the result map as each lands.
	// The mutex guards the read-modify-write so a late result for one
	// index never clobbers another index's entry.
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for i := range survey.Questions {
		job := s.questionJob(ctx, survey, survey.Questions[i], &mu, out.Results)
		if job == nil {
			continue
		}

		wg.Add(1)
		wrapped := func(context.Context) {
			defer wg.Done()
			job(ctx)
		}

		if submitErr := s.pool.Submit(wrapped); submitErr != nil {
			s.log.Warn("pool saturated, running fetch inline",
				"survey_id", survey.ID,
				"question", survey.Questions[i].Position,
				"err", submitErr)
			wrapped(ctx)
		}
	}

	wg.Wait()

	return out, nil
}

func (s *analyticsServiceImpl) questionJob(ctx context.Context, survey *models.Survey, q models.Question, mu *sync.Mutex, results map[int]models.QuestionResult) workerpool.Job {
	addr := s.responses.AddressesFor(q.Position, q.ID)

	switch q.Type {
	case models.QuestionRating:
		return workerpool.WithRetry(fetchRetries, fetchRetryDelay, s.log, func() error {
			return s.loadRating(ctx, survey, q, addr, mu, results)
		})
	case models.QuestionSingleChoice, models.QuestionMultipleChoice:
		return workerpool.WithRetry(fetchRetries, fetchRetryDelay, s.log, func() error {
			rows, err := s.events.ChoiceRows(ctx, survey.ID, addr)
			if err != nil {
				return err
			}
			hist := s.responses.ChoiceHistogram(rows)
			s.merge(mu, results, q.Position, func(r *models.QuestionResult) {
				r.Choices = hist
			})
			return nil
		})
	case models.QuestionOpen:
		return workerpool.WithRetry(fetchRetries, fetchRetryDelay, s.log, func() error {
			rows, err := s.events.OpenTextRows(ctx, survey.ID, addr, openTextExcerptLimit)
			if err != nil {
				return err
			}
			answers := s.responses.OpenTextExcerpts(rows, addr)
			s.merge(mu, results, q.Position, func(r *models.QuestionResult) {
				r.OpenText = answers
			})
			return nil
		})
	default:
		// Link questions have no answer to aggregate.
		return nil
	}
}

func (s *analyticsServiceImpl) loadRating(ctx context.Context, survey *models.Survey, q models.Question, addr models.ResponseAddresses, mu *sync.Mutex, results map[int]models.QuestionResult) error {
	rows, err := s.events.RatingRows(ctx, survey.ID, addr)
	if err != nil {
		return err
	}

	hist := s.nps.Histogram(rows, q.RatingScale)

	var bucket *models.NPSBucket
	var score *float64
	var iterationScores []float64

	// Only a true 0-10 scale feeds the NPS path.
	if q.RatingScale == 10 {
		b := s.nps.Bucket(rows)
		bucket = &b

		if v, err := s.nps.Score(b); err == nil {
			score = &v
		}

		if survey.IterationCount > 1 {
			iterRows, err := s.events.IterationRatingRows(ctx, survey.ID, addr)
			if err != nil {
				return err
			}
			iterationScores = s.nps.ScoresByIteration(iterRows, survey.IterationCount)
		}
	}

	s.merge(mu, results, q.Position, func(r *models.QuestionResult) {
		r.Histogram = hist
		r.Bucket = bucket
		r.Score = score
		r.IterationScores = iterationScores
	})
	return nil
}

// merge applies an update against the latest accumulated entry for one
// index, never against a stale snapshot of the map.
func (s *analyticsServiceImpl) merge(mu *sync.Mutex, results map[int]models.QuestionResult, index int, apply func(*models.QuestionResult)) {
	mu.Lock()
	defer mu.Unlock()

	r := results[index]
	r.Index = index
	apply(&r)
	results[index] = r
}
