package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// The three canonical funnel events.
type EventKind string

const (
	EventShown     EventKind = "shown"
	EventDismissed EventKind = "dismissed"
	EventSent      EventKind = "sent"
)

// FunnelRow is one aggregate row from the event store. Kinds with no
// matching events produce no row at all.
type FunnelRow struct {
	Event         EventKind  `db:"event_name" json:"event_name"`
	TotalCount    int        `db:"total_count" json:"total_count"`
	UniquePersons int        `db:"unique_persons" json:"unique_persons"`
	FirstSeen     *time.Time `db:"first_seen" json:"first_seen"`
	LastSeen      *time.Time `db:"last_seen" json:"last_seen"`
}

// EventStat holds the per-kind figures of a funnel snapshot. The only-seen
// fields are derived and populated only on the shown entry.
type EventStat struct {
	TotalCount            int        `json:"total_count"`
	UniquePersons         int        `json:"unique_persons"`
	FirstSeen             *time.Time `json:"first_seen"`
	LastSeen              *time.Time `json:"last_seen"`
	TotalCountOnlySeen    int        `json:"total_count_only_seen"`
	UniquePersonsOnlySeen int        `json:"unique_persons_only_seen"`
}

// FunnelSnapshot is an immutable aggregate over one survey's funnel events.
type FunnelSnapshot struct {
	Shown     EventStat `json:"shown"`
	Dismissed EventStat `json:"dismissed"`
	Sent      EventStat `json:"sent"`
}

// RateSet holds the funnel percentages, each in [0, 100] with two decimal
// places.
type RateSet struct {
	ResponseRate               float64 `json:"response_rate"`
	DismissalRate              float64 `json:"dismissal_rate"`
	UniquePersonsResponseRate  float64 `json:"unique_persons_response_rate"`
	UniquePersonsDismissalRate float64 `json:"unique_persons_dismissal_rate"`
}

// RatingRow is one histogram row for a rating question.
type RatingRow struct {
	Rating int `db:"rating_value" json:"rating_value"`
	Count  int `db:"count" json:"count"`
}

// IterationRatingRow is a rating row tagged with its 1-indexed recurrence
// iteration.
type IterationRatingRow struct {
	Iteration int `db:"iteration" json:"iteration"`
	Rating    int `db:"rating_value" json:"rating_value"`
	Count     int `db:"count" json:"count"`
}

// NPSBucket counts sentiment classes for one rating question.
type NPSBucket struct {
	// Ratings 9 or 10
	Promoters int `json:"promoters"`
	// Ratings 7 or 8
	Passives int `json:"passives"`
	// 6 or lower
	Detractors int `json:"detractors"`
}

// ChoiceRow is one histogram row for a choice question.
type ChoiceRow struct {
	Count int    `db:"count" json:"count"`
	Label string `db:"choice_label" json:"choice_label"`
}

// Properties is a jsonb payload column.
type Properties map[string]any

func (p Properties) Value() (driver.Value, error) {
	if p == nil {
		return json.Marshal(map[string]any{})
	}
	return json.Marshal(p)
}

func (p *Properties) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	}
	return fmt.Errorf("cannot scan %T into Properties", src)
}

// OpenTextRow is one raw response row for an open question.
type OpenTextRow struct {
	ActorID         string     `db:"actor_id" json:"actor_id"`
	EventProperties Properties `db:"event_properties" json:"event_properties"`
	ActorProperties Properties `db:"actor_properties" json:"actor_properties"`
}

// OpenTextAnswer is one resolved open-text excerpt.
type OpenTextAnswer struct {
	ActorID string `json:"actor_id"`
	Answer  string `json:"answer"`
}

// ResponseAddresses are the payload keys under which one question's answer
// may be stored. IDKey is empty when the question has no stable identifier
// yet and must be preferred over PositionKey when present.
type ResponseAddresses struct {
	PositionKey string `json:"position_key"`
	IDKey       string `json:"id_key,omitempty"`
}

// QuestionResult accumulates the analytics for one question. Which fields
// are set depends on the question type.
type QuestionResult struct {
	Index           int              `json:"index"`
	Bucket          *NPSBucket       `json:"bucket,omitempty"`
	Score           *float64         `json:"score,omitempty"`
	IterationScores []float64        `json:"iteration_scores,omitempty"`
	Histogram       []int            `json:"histogram,omitempty"`
	Choices         map[string]int   `json:"choices,omitempty"`
	OpenText        []OpenTextAnswer `json:"open_text,omitempty"`
}

// SurveyAnalytics is everything the analytics view needs, keyed by question
// index. Funnel is nil when the survey has no events at all.
type SurveyAnalytics struct {
	Funnel  *FunnelSnapshot        `json:"funnel,omitempty"`
	Rates   RateSet                `json:"rates"`
	Results map[int]QuestionResult `json:"results"`
}
