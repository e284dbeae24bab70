package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/paulexconde/surveypulse/internal/models"
	"github.com/paulexconde/surveypulse/internal/pkg/fault"
	"github.com/paulexconde/surveypulse/internal/pkg/paginator"
	"github.com/paulexconde/surveypulse/internal/pkg/store"
)

const surveyColumns = "id, name, iteration_count, start_date, questions"

// Handles survey draft persistence.
type SurveyService interface {
	GetSurvey(ctx context.Context, id int) (*models.Survey, error)
	// SaveSurvey persists a draft. A branching configuration with a cycle
	// is refused outright: an undetected cycle turns the runtime renderer
	// into an infinite loop for respondents.
	SaveSurvey(ctx context.Context, survey *models.Survey) (*models.Survey, error)
	ListSurveys(ctx context.Context, page, limit int) (*paginator.PaginatedResponse[models.Survey], error)
	DeleteSurvey(ctx context.Context, id int) error
}

type surveyServiceImpl struct {
	store store.Datastorer[models.Survey]
	pages paginator.Paginator[models.Survey]
}

// Instantiate the SurveyService.
func NewSurveyService(ds store.Datastorer[models.Survey]) SurveyService {
	return &surveyServiceImpl{
		store: ds,
		pages: paginator.NewPaginator(ds),
	}
}

func (s *surveyServiceImpl) GetSurvey(ctx context.Context, id int) (*models.Survey, error) {
	query := fmt.Sprintf("SELECT %s FROM surveys WHERE id=$1", surveyColumns)
	return s.store.Get(ctx, query, id)
}

func (s *surveyServiceImpl) SaveSurvey(ctx context.Context, survey *models.Survey) (*models.Survey, error) {
	branching := NewBranchingService(survey.Questions)
	if branching.DetectCycle() {
		return nil, fault.NewClientError("survey branching contains a cycle", nil)
	}

	for i := range survey.Questions {
		survey.Questions[i].Position = i
		if survey.Questions[i].ID == "" {
			survey.Questions[i].ID = uuid.NewString()
		}
	}

	dto := models.SurveyDTO{
		Name:           survey.Name,
		IterationCount: survey.IterationCount,
		StartDate:      survey.StartDate,
		Questions:      survey.Questions,
	}

	var (
		saved any
		err   error
	)
	if survey.ID == 0 {
		saved, err = s.store.Create(ctx, dto)
	} else {
		saved, err = s.store.Update(ctx, survey.ID, dto)
	}
	if err != nil {
		return nil, err
	}

	model, ok := saved.(*models.Survey)
	if !ok {
		return nil, fault.NewInternalError(fmt.Sprintf("unexpected model type %T from store", saved), nil)
	}
	return model, nil
}

func (s *surveyServiceImpl) ListSurveys(ctx context.Context, page, limit int) (*paginator.PaginatedResponse[models.Survey], error) {
	query := fmt.Sprintf("SELECT %s FROM surveys ORDER BY id", surveyColumns)
	return s.pages.PaginateQuery(ctx, query, nil, page, limit)
}

func (s *surveyServiceImpl) DeleteSurvey(ctx context.Context, id int) error {
	return s.store.Delete(ctx, id)
}
