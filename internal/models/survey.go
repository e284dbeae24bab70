package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// The type of question being asked.
type QuestionType string

const (
	QuestionOpen           QuestionType = "open"
	QuestionRating         QuestionType = "rating"
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionLink           QuestionType = "link"
)

// What happens after a question is answered.
type BranchingType string

const (
	BranchingNextQuestion     BranchingType = "next_question"
	BranchingEnd              BranchingType = "end"
	BranchingSpecificQuestion BranchingType = "specific_question"
	BranchingResponseBased    BranchingType = "response_based"
)

// BranchOutcome is one resolved step of the flow: either the survey ends or
// it jumps to the question at Target.
type BranchOutcome struct {
	End    bool `json:"end,omitempty"`
	Target int  `json:"target,omitempty"`
}

// Branching determines where the respondent goes after a question.
//
// Target is only meaningful for specific_question. ResponseValues is only
// meaningful for response_based and maps a response value to an outcome;
// values without an entry fall through to the default next question.
type Branching struct {
	Type           BranchingType            `json:"type"`
	Target         int                      `json:"target,omitempty"`
	ResponseValues map[string]BranchOutcome `json:"response_values,omitempty"`
}

func (b Branching) Value() (driver.Value, error) {
	return json.Marshal(b)
}

func (b *Branching) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	}
	return fmt.Errorf("cannot scan %T into Branching", src)
}

// The Question object.
//
// ID is the stable identifier assigned when the survey is first persisted;
// it survives reordering, unlike Position. A draft question has an empty ID.
type Question struct {
	ID          string       `json:"id,omitempty"`
	Position    int          `json:"position"`
	Text        string       `json:"text"`
	Type        QuestionType `json:"type"`
	Choices     []string     `json:"choices,omitempty"`
	RatingScale int          `json:"rating_scale,omitempty"`
	Branching   *Branching   `json:"branching,omitempty"`
}

// QuestionList is a jsonb column in the database.
type QuestionList []Question

func (l QuestionList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]Question{})
	}
	return json.Marshal(l)
}

func (l *QuestionList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return fmt.Errorf("cannot scan %T into QuestionList", src)
}

// The Survey object.
type Survey struct {
	ID             int          `db:"id" json:"id"`
	Name           string       `db:"name" json:"name"`
	IterationCount int          `db:"iteration_count" json:"iteration_count"`
	StartDate      *time.Time   `db:"start_date" json:"start_date"`
	Questions      QuestionList `db:"questions" json:"questions"`
}

// SurveyDTO is the write shape for the datastore.
type SurveyDTO struct {
	Name           string       `db:"name"`
	IterationCount int          `db:"iteration_count"`
	StartDate      *time.Time   `db:"start_date"`
	Questions      QuestionList `db:"questions"`
}

func (d SurveyDTO) ToModel(id int) any {
	return &Survey{
		ID:             id,
		Name:           d.Name,
		IterationCount: d.IterationCount,
		StartDate:      d.StartDate,
		Questions:      d.Questions,
	}
}
