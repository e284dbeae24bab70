package services

import (
	"fmt"
	"testing"

	"github.com/paulexconde/surveypulse/internal/models"
	"github.com/paulexconde/surveypulse/internal/pkg/fault"
)

func TestAddressesFor(t *testing.T) {
	svc := NewResponseService()

	tests := []struct {
		name       string
		index      int
		questionID string
		expected   models.ResponseAddresses
	}{
		{
			name:     "first question uses the bare legacy key",
			index:    0,
			expected: models.ResponseAddresses{PositionKey: "$survey_response"},
		},
		{
			name:     "later questions suffix the position",
			index:    2,
			expected: models.ResponseAddresses{PositionKey: "$survey_response_2"},
		},
		{
			name:       "persisted question gets an id key",
			index:      1,
			questionID: "e3b1",
			expected: models.ResponseAddresses{
				PositionKey: "$survey_response_1",
				IDKey:       "$survey_response_e3b1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.AddressesFor(tt.index, tt.questionID); got != tt.expected {
				t.Errorf("AddressesFor(%d, %q) = %+v, want %+v", tt.index, tt.questionID, got, tt.expected)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	svc := NewResponseService()
	addr := models.ResponseAddresses{
		PositionKey: "$survey_response_1",
		IDKey:       "$survey_response_abc",
	}

	tests := []struct {
		name     string
		payload  models.Properties
		expected any
		found    bool
	}{
		{
			name: "id key preferred when both exist",
			payload: models.Properties{
				"$survey_response_1":   "by position",
				"$survey_response_abc": "by id",
			},
			expected: "by id",
			found:    true,
		},
		{
			name: "falls back to position key",
			payload: models.Properties{
				"$survey_response_1": "historical answer",
			},
			expected: "historical answer",
			found:    true,
		},
		{
			name:    "absent answer is not an error",
			payload: models.Properties{"unrelated": true},
			found:   false,
		},
		{
			name:  "nil payload",
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := svc.Resolve(tt.payload, addr)
			if found != tt.found {
				t.Fatalf("found = %v, want %v", found, tt.found)
			}
			if found && got != tt.expected {
				t.Errorf("Resolve() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestResolveRaw(t *testing.T) {
	svc := NewResponseService()
	addr := models.ResponseAddresses{PositionKey: "$survey_response"}

	t.Run("valid payload", func(t *testing.T) {
		got, found := svc.ResolveRaw([]byte(`{"$survey_response": "yes"}`), addr)
		if !found || got != "yes" {
			t.Errorf("ResolveRaw() = %v, %v; want yes, true", got, found)
		}
	})

	t.Run("malformed payload degrades to absent", func(t *testing.T) {
		if _, found := svc.ResolveRaw([]byte(`{not json`), addr); found {
			t.Error("expected absent for malformed payload")
		}
	})
}

func TestChoiceHistogram(t *testing.T) {
	svc := NewResponseService()

	rows := []models.ChoiceRow{
		{Count: 5, Label: "Docs"},
		{Count: 3, Label: "Support"},
		{Count: 2, Label: "Docs"},
	}

	got := svc.ChoiceHistogram(rows)

	if got["Docs"] != 7 || got["Support"] != 3 {
		t.Errorf("ChoiceHistogram() = %v", got)
	}
}

func TestOpenTextExcerpts(t *testing.T) {
	svc := NewResponseService()
	addr := models.ResponseAddresses{PositionKey: "$survey_response"}

	var rows []models.OpenTextRow
	for i := 0; i < 25; i++ {
		rows = append(rows, models.OpenTextRow{
			ActorID:         fmt.Sprintf("actor-%d", i),
			EventProperties: models.Properties{"$survey_response": fmt.Sprintf("answer %d", i)},
		})
	}
	// Rows without a usable answer are skipped, not errors.
	rows = append(rows,
		models.OpenTextRow{ActorID: "no-answer", EventProperties: models.Properties{}},
		models.OpenTextRow{ActorID: "not-text", EventProperties: models.Properties{"$survey_response": 42}},
		models.OpenTextRow{ActorID: "blank", EventProperties: models.Properties{"$survey_response": "   "}},
	)

	got := svc.OpenTextExcerpts(rows, addr)

	if len(got) != 20 {
		t.Fatalf("expected excerpt cap of 20, got %d", len(got))
	}
	if got[0].ActorID != "actor-0" || got[0].Answer != "answer 0" {
		t.Errorf("first excerpt = %+v", got[0])
	}
}

func TestFilterOpenText(t *testing.T) {
	svc := NewResponseService()

	rows := []models.OpenTextRow{
		{
			ActorID:         "a",
			EventProperties: models.Properties{"$survey_response": "love it"},
			ActorProperties: models.Properties{"plan": "pro"},
		},
		{
			ActorID:         "b",
			EventProperties: models.Properties{"$survey_response": "meh"},
			ActorProperties: models.Properties{"plan": "free"},
		},
	}

	t.Run("matching rows kept", func(t *testing.T) {
		got, err := svc.FilterOpenText(rows, `person.plan == "pro"`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].ActorID != "a" {
			t.Errorf("FilterOpenText() = %+v", got)
		}
	})

	t.Run("empty expression keeps everything", func(t *testing.T) {
		got, err := svc.FilterOpenText(rows, "  ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != len(rows) {
			t.Errorf("expected all rows, got %d", len(got))
		}
	})

	t.Run("invalid expression is a client error", func(t *testing.T) {
		_, err := svc.FilterOpenText(rows, `person.plan ==`)
		if err == nil || !fault.IsClientError(err) {
			t.Errorf("expected client error, got %v", err)
		}
	})

	t.Run("non boolean expression is a client error", func(t *testing.T) {
		_, err := svc.FilterOpenText(rows, `person.plan`)
		if err == nil || !fault.IsClientError(err) {
			t.Errorf("expected client error, got %v", err)
		}
	})
}
