package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/paulexconde/surveypulse/internal/models"
	"github.com/paulexconde/surveypulse/internal/pkg/workerpool"
)

type fakeQuerier struct {
	funnelRows []models.FunnelRow
	overlap    int
	ratings    []models.RatingRow
	iterations []models.IterationRatingRow
	openText   []models.OpenTextRow
}

func (f *fakeQuerier) FunnelRows(ctx context.Context, surveyID int) ([]models.FunnelRow, error) {
	return f.funnelRows, nil
}

func (f *fakeQuerier) DismissedAndSentOverlap(ctx context.Context, surveyID int) (int, error) {
	return f.overlap, nil
}

func (f *fakeQuerier) RatingRows(ctx context.Context, surveyID int, addr models.ResponseAddresses) ([]models.RatingRow, error) {
	return f.ratings, nil
}

func (f *fakeQuerier) IterationRatingRows(ctx context.Context, surveyID int, addr models.ResponseAddresses) ([]models.IterationRatingRow, error) {
	return f.iterations, nil
}

func (f *fakeQuerier) ChoiceRows(ctx context.Context, surveyID int, addr models.ResponseAddresses) ([]models.ChoiceRow, error) {
	// Echo the address so per-question results are distinguishable.
	return []models.ChoiceRow{{Count: 1, Label: addr.PositionKey}}, nil
}

func (f *fakeQuerier) OpenTextRows(ctx context.Context, surveyID int, addr models.ResponseAddresses, limit int) ([]models.OpenTextRow, error) {
	return f.openText, nil
}

func newTestPool(t *testing.T) *workerpool.WorkerPool {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return workerpool.NewWorkerPool(ctx, 4, 32, nil)
}

func TestLoadSurveyStats(t *testing.T) {
	querier := &fakeQuerier{
		funnelRows: []models.FunnelRow{
			{Event: models.EventShown, TotalCount: 100, UniquePersons: 100},
			{Event: models.EventDismissed, TotalCount: 20, UniquePersons: 30},
			{Event: models.EventSent, TotalCount: 40, UniquePersons: 25},
		},
		overlap: 10,
		ratings: []models.RatingRow{
			{Rating: 10, Count: 50},
			{Rating: 8, Count: 20},
			{Rating: 3, Count: 30},
		},
		openText: []models.OpenTextRow{
			{ActorID: "a", EventProperties: models.Properties{"$survey_response_2": "works great"}},
		},
	}

	svc := NewAnalyticsService(querier, newTestPool(t), nil)

	survey := &models.Survey{
		ID:             1,
		Name:           "Product pulse",
		IterationCount: 1,
		Questions: models.QuestionList{
			{Position: 0, Type: models.QuestionRating, RatingScale: 10},
			{Position: 1, Type: models.QuestionSingleChoice, Choices: []string{"Docs", "Support"}},
			{Position: 2, Type: models.QuestionOpen},
			{Position: 3, Type: models.QuestionLink},
		},
	}

	got, err := svc.LoadSurveyStats(context.Background(), survey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Funnel == nil {
		t.Fatal("expected a funnel snapshot")
	}
	if got.Funnel.Dismissed.UniquePersons != 20 {
		t.Errorf("corrected dismissed uniques = %d, want 20", got.Funnel.Dismissed.UniquePersons)
	}
	if got.Rates.ResponseRate != 40.00 || got.Rates.DismissalRate != 20.00 {
		t.Errorf("rates = %+v", got.Rates)
	}

	rating := got.Results[0]
	if rating.Bucket == nil || *rating.Bucket != (models.NPSBucket{Promoters: 50, Passives: 20, Detractors: 30}) {
		t.Errorf("rating bucket = %+v", rating.Bucket)
	}
	if rating.Score == nil || *rating.Score != 20.0 {
		t.Errorf("rating score = %v, want 20.0", rating.Score)
	}
	if len(rating.Histogram) != 11 {
		t.Errorf("histogram slots = %d, want 11", len(rating.Histogram))
	}

	if got.Results[1].Choices["$survey_response_1"] != 1 {
		t.Errorf("choice result = %+v", got.Results[1])
	}

	open := got.Results[2]
	if len(open.OpenText) != 1 || open.OpenText[0].Answer != "works great" {
		t.Errorf("open text result = %+v", open.OpenText)
	}

	if _, ok := got.Results[3]; ok {
		t.Error("link questions should produce no result entry")
	}
}

func TestLoadSurveyStatsNoEvents(t *testing.T) {
	svc := NewAnalyticsService(&fakeQuerier{}, newTestPool(t), nil)

	survey := &models.Survey{ID: 2, Questions: models.QuestionList{
		{Position: 0, Type: models.QuestionLink},
	}}

	got, err := svc.LoadSurveyStats(context.Background(), survey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Never launched is unavailable, not all-zero.
	if got.Funnel != nil {
		t.Errorf("expected nil funnel, got %+v", got.Funnel)
	}
	if got.Rates != (models.RateSet{}) {
		t.Errorf("expected zero rates, got %+v", got.Rates)
	}
}

func TestLoadSurveyStatsConcurrentMerge(t *testing.T) {
	querier := &fakeQuerier{
		funnelRows: []models.FunnelRow{
			{Event: models.EventShown, TotalCount: 1, UniquePersons: 1},
		},
	}
	svc := NewAnalyticsService(querier, newTestPool(t), nil)

	var questions models.QuestionList
	for i := 0; i < 12; i++ {
		questions = append(questions, models.Question{Position: i, Type: models.QuestionSingleChoice})
	}
	survey := &models.Survey{ID: 3, Questions: questions}

	got, err := svc.LoadSurveyStats(context.Background(), survey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got.Results) != 12 {
		t.Fatalf("expected 12 merged results, got %d", len(got.Results))
	}
	for i := 0; i < 12; i++ {
		result, ok := got.Results[i]
		if !ok {
			t.Fatalf("missing result for question %d", i)
		}
		key := "$survey_response"
		if i > 0 {
			key = fmt.Sprintf("$survey_response_%d", i)
		}
		if result.Choices[key] != 1 {
			t.Errorf("question %d result holds wrong data: %+v", i, result.Choices)
		}
	}
}
