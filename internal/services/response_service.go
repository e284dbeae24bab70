package services

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/paulexconde/surveypulse/internal/models"
	"github.com/paulexconde/surveypulse/internal/pkg/fault"
)

// Payload key prefix under which answers are recorded. Historical events
// were recorded before questions had stable identifiers, so every answer
// may live under a position-based key, an id-based key, or both. Both forms
// must resolve forever.
const responseFieldKey = "$survey_response"

// How many open-text rows the excerpt view shows.
const openTextExcerptLimit = 20

// Handles locating answers inside free-form event payloads and shaping raw
// response rows for display.
type ResponseService interface {
	// AddressesFor produces the payload keys for one question. The id key
	// is only present once the question has a stable identifier and wins
	// over the position key because it survives reordering.
	AddressesFor(index int, questionID string) models.ResponseAddresses
	// Resolve looks an answer up in a payload, id key first. A missing
	// answer is absent, not an error.
	Resolve(payload models.Properties, addr models.ResponseAddresses) (any, bool)
	// ResolveRaw parses a raw payload and resolves against it. Malformed
	// payloads degrade to absent.
	ResolveRaw(raw []byte, addr models.ResponseAddresses) (any, bool)
	// ChoiceHistogram folds choice rows into label counts.
	ChoiceHistogram(rows []models.ChoiceRow) map[string]int
	// OpenTextExcerpts resolves the answers out of open-text rows, capped
	// for display.
	OpenTextExcerpts(rows []models.OpenTextRow, addr models.ResponseAddresses) []models.OpenTextAnswer
	// FilterOpenText keeps the rows matching an operator-supplied boolean
	// expression over the event and person properties.
	FilterOpenText(rows []models.OpenTextRow, expression string) ([]models.OpenTextRow, error)
}

type responseServiceImpl struct{}

// Instantiate the ResponseService.
func NewResponseService() ResponseService {
	return &responseServiceImpl{}
}

func (s *responseServiceImpl) AddressesFor(index int, questionID string) models.ResponseAddresses {
	addr := models.ResponseAddresses{PositionKey: positionKey(index)}
	if questionID != "" {
		addr.IDKey = responseFieldKey + "_" + questionID
	}
	return addr
}

// positionKey is the legacy addressing scheme: the bare key for the first
// question, suffixed with the ordinal for the rest.
func positionKey(index int) string {
	if index == 0 {
		return responseFieldKey
	}
	return responseFieldKey + "_" + strconv.Itoa(index)
}

func (s *responseServiceImpl) Resolve(payload models.Properties, addr models.ResponseAddresses) (any, bool) {
	if payload == nil {
		return nil, false
	}
	if addr.IDKey != "" {
		if v, ok := payload[addr.IDKey]; ok {
			return v, true
		}
	}
	if v, ok := payload[addr.PositionKey]; ok {
		return v, true
	}
	return nil, false
}

func (s *responseServiceImpl) ResolveRaw(raw []byte, addr models.ResponseAddresses) (any, bool) {
	var payload models.Properties
	if err := json.Unmarshal(raw, &payload); err != nil {
		// Malformed payload, treat the answer as absent.
		return nil, false
	}
	return s.Resolve(payload, addr)
}

func (s *responseServiceImpl) ChoiceHistogram(rows []models.ChoiceRow) map[string]int {
	hist := make(map[string]int, len(rows))
	for _, row := range rows {
		hist[row.Label] += row.Count
	}
	return hist
}

func (s *responseServiceImpl) OpenTextExcerpts(rows []models.OpenTextRow, addr models.ResponseAddresses) []models.OpenTextAnswer {
	var answers []models.OpenTextAnswer

	for _, row := range rows {
		if len(answers) == openTextExcerptLimit {
			break
		}

		value, ok := s.Resolve(row.EventProperties, addr)
		if !ok {
			continue
		}
		text, ok := value.(string)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}

		answers = append(answers, models.OpenTextAnswer{ActorID: row.ActorID, Answer: text})
	}

	return answers
}

func (s *responseServiceImpl) FilterOpenText(rows []models.OpenTextRow, expression string) ([]models.OpenTextRow, error) {
	if strings.TrimSpace(expression) == "" {
		return rows, nil
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fault.NewClientError("invalid filter expression", err)
	}

	var matched []models.OpenTextRow
	for _, row := range rows {
		input := map[string]any{
			"event":  map[string]any(row.EventProperties),
			"person": map[string]any(row.ActorProperties),
		}

		output, err := expr.Run(program, input)
		if err != nil {
			// One bad row does not fail the whole filter.
			continue
		}

		result, ok := output.(bool)
		if !ok {
			return nil, fault.NewClientError("filter expression did not return a boolean", nil)
		}
		if result {
			matched = append(matched, row)
		}
	}

	return matched, nil
}

