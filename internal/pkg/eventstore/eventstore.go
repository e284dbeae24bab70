// Package eventstore is the query client over the raw survey event log. It
// only produces row tuples; all aggregation happens in the services layer.
package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/paulexconde/surveypulse/internal/models"
)

const eventsTable = "survey_events"

// Events land with the respondent's answers inside a free-form properties
// payload; these keys are the fixed metadata ones.
const (
	partialCompletionKey = "$survey_partially_completed"
	iterationKey         = "$survey_iteration"
)

type EventStore struct {
	db  *sqlx.DB
	log *slog.Logger
}

func New(db *sqlx.DB, log *slog.Logger) *EventStore {
	if log == nil {
		log = slog.Default()
	}
	return &EventStore{db: db, log: log}
}

// FunnelRows returns one aggregate row per event kind that occurred for the
// survey. Kinds with no events produce no row.
func (e *EventStore) FunnelRows(ctx context.Context, surveyID int) ([]models.FunnelRow, error) {
	query := fmt.Sprintf(`
		SELECT event_name,
		       COUNT(*) AS total_count,
		       COUNT(DISTINCT actor_id) AS unique_persons,
		       MIN(occurred_at) AS first_seen,
		       MAX(occurred_at) AS last_seen
		FROM %s
		WHERE survey_id = $1
		  AND event_name IN ('shown', 'dismissed', 'sent')
		GROUP BY event_name`, eventsTable)

	var rows []models.FunnelRow
	if err := e.db.SelectContext(ctx, &rows, query, surveyID); err != nil {
		return nil, err
	}

	e.log.Debug("loaded funnel rows", "survey_id", surveyID, "kinds", len(rows))
	return rows, nil
}

// DismissedAndSentOverlap counts actors who both dismissed and completed
// the survey, counting each actor once and ignoring dismissals that were
// themselves partial completions.
func (e *EventStore) DismissedAndSentOverlap(ctx context.Context, surveyID int) (int, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(DISTINCT d.actor_id)
		FROM %s d
		JOIN %s s
		  ON s.survey_id = d.survey_id
		 AND s.actor_id = d.actor_id
		 AND s.event_name = 'sent'
		WHERE d.survey_id = $1
		  AND d.event_name = 'dismissed'
		  AND COALESCE((d.properties ->> %s)::boolean, false) = false`,
		eventsTable, eventsTable, pq.QuoteLiteral(partialCompletionKey))

	var count int
	if err := e.db.GetContext(ctx, &count, query, surveyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// RatingRows returns the histogram rows for one rating question.
func (e *EventStore) RatingRows(ctx context.Context, surveyID int, addr models.ResponseAddresses) ([]models.RatingRow, error) {
	answer := answerExpr(addr)
	query := fmt.Sprintf(`
		SELECT (%s)::int AS rating_value, COUNT(*) AS count
		FROM %s
		WHERE survey_id = $1
		  AND event_name = 'sent'
		  AND %s ~ '^[0-9]+$'
		GROUP BY 1
		ORDER BY 1`, answer, eventsTable, answer)

	var rows []models.RatingRow
	if err := e.db.SelectContext(ctx, &rows, query, surveyID); err != nil {
		return nil, err
	}
	return rows, nil
}

// IterationRatingRows is RatingRows split by recurrence iteration. Events
// recorded before the survey became recurring count as iteration 1.
func (e *EventStore) IterationRatingRows(ctx context.Context, surveyID int, addr models.ResponseAddresses) ([]models.IterationRatingRow, error) {
	answer := answerExpr(addr)
	query := fmt.Sprintf(`
		SELECT COALESCE((properties ->> %s)::int, 1) AS iteration,
		       (%s)::int AS rating_value,
		       COUNT(*) AS count
		FROM %s
		WHERE survey_id = $1
		  AND event_name = 'sent'
		  AND %s ~ '^[0-9]+$'
		GROUP BY 1, 2
		ORDER BY 1, 2`, pq.QuoteLiteral(iterationKey), answer, eventsTable, answer)

	var rows []models.IterationRatingRow
	if err := e.db.SelectContext(ctx, &rows, query, surveyID); err != nil {
		return nil, err
	}
	return rows, nil
}

// ChoiceRows returns the histogram rows for one choice question.
func (e *EventStore) ChoiceRows(ctx context.Context, surveyID int, addr models.ResponseAddresses) ([]models.ChoiceRow, error) {
	answer := answerExpr(addr)
	query := fmt.Sprintf(`
		SELECT COUNT(*) AS count, %s AS choice_label
		FROM %s
		WHERE survey_id = $1
		  AND event_name = 'sent'
		  AND %s IS NOT NULL
		  AND %s <> ''
		GROUP BY 2
		ORDER BY 1 DESC`, answer, eventsTable, answer, answer)

	var rows []models.ChoiceRow
	if err := e.db.SelectContext(ctx, &rows, query, surveyID); err != nil {
		return nil, err
	}
	return rows, nil
}

// OpenTextRows returns the newest raw response rows for one open question,
// capped at limit.
func (e *EventStore) OpenTextRows(ctx context.Context, surveyID int, addr models.ResponseAddresses, limit int) ([]models.OpenTextRow, error) {
	answer := answerExpr(addr)
	query := fmt.Sprintf(`
		SELECT actor_id,
		       properties AS event_properties,
		       actor_properties
		FROM %s
		WHERE survey_id = $1
		  AND event_name = 'sent'
		  AND %s IS NOT NULL
		  AND %s <> ''
		ORDER BY occurred_at DESC
		LIMIT $2`, eventsTable, answer, answer)

	var rows []models.OpenTextRow
	if err := e.db.SelectContext(ctx, &rows, query, surveyID, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

// answerExpr addresses one question's answer inside the properties payload,
// preferring the stable-id key over the legacy position key when both exist.
func answerExpr(addr models.ResponseAddresses) string {
	position := "properties ->> " + pq.QuoteLiteral(addr.PositionKey)
	if addr.IDKey == "" {
		return position
	}
	return fmt.Sprintf("COALESCE(properties ->> %s, %s)", pq.QuoteLiteral(addr.IDKey), position)
}
