package services

import (
	"fmt"
	"sort"

	"github.com/paulexconde/surveypulse/internal/models"
	"github.com/paulexconde/surveypulse/internal/pkg/fault"
)

// Handles the branching configuration of a survey draft and the directed
// graph it implies.
//
// Every question has an implicit edge to the next question unless its
// branching produced an end. Targets are not range-checked here; an
// out-of-range target is a dangling edge and range validation belongs to
// the form layer.
type BranchingService interface {
	// SetBranching replaces the branching on one question. Setting
	// next_question clears any stored branching.
	SetBranching(index int, kind models.BranchingType, target int) error
	// SetResponseOutcome maps one response value to an outcome on a
	// question that already has response_based branching. A next_question
	// outcome removes the entry instead of storing it.
	SetResponseOutcome(index int, responseValue string, kind models.BranchingType, target int) error
	// ResetBranching removes branching on one question. Idempotent.
	ResetBranching(index int)
	// ClearAllBranching removes branching on every question. Idempotent.
	ClearAllBranching()
	// EffectiveEdges returns the sorted set of question indices reachable
	// in one step from index.
	EffectiveEdges(index int) []int
	// DetectCycle reports whether any directed cycle is reachable from
	// question 0. It never errors; a broken configuration is a boolean
	// fact, not an exception.
	DetectCycle() bool
	// BranchingSummaryFor describes the branching on one question for
	// display, synthesizing the implicit default when none is stored.
	BranchingSummaryFor(index int) string
	// ResponseOutcomeFor describes the outcome of one response value on a
	// response_based question, falling back to the implicit default.
	ResponseOutcomeFor(index int, responseValue string) string
	// HasAnyBranching is true if at least one question carries branching.
	HasAnyBranching() bool
	// NextForAnswer resolves the runtime step after answering a question.
	NextForAnswer(index int, answer string) models.BranchOutcome
	// Questions exposes the draft being edited.
	Questions() []models.Question
}

type branchingServiceImpl struct {
	questions []models.Question
}

// Instantiate the BranchingService over a survey draft. The slice is edited
// in place so the caller sees mutations.
func NewBranchingService(questions []models.Question) BranchingService {
	return &branchingServiceImpl{questions: questions}
}

func (s *branchingServiceImpl) Questions() []models.Question {
	return s.questions
}

func (s *branchingServiceImpl) SetBranching(index int, kind models.BranchingType, target int) error {
	if index < 0 || index >= len(s.questions) {
		return fault.NewClientError("no question at index", fault.ErrNotFound)
	}

	q := &s.questions[index]

	switch kind {
	case models.BranchingNextQuestion:
		// Default flow, nothing to store.
		q.Branching = nil
	case models.BranchingEnd:
		q.Branching = &models.Branching{Type: models.BranchingEnd}
	case models.BranchingSpecificQuestion:
		q.Branching = &models.Branching{Type: models.BranchingSpecificQuestion, Target: target}
	case models.BranchingResponseBased:
		if q.Type != models.QuestionRating && q.Type != models.QuestionSingleChoice {
			return fault.NewClientError(
				fmt.Sprintf("response-based branching requires a rating or single-choice question, got %s", q.Type),
				fault.ErrInvalidQuestionType,
			)
		}
		q.Branching = &models.Branching{
			Type:           models.BranchingResponseBased,
			ResponseValues: map[string]models.BranchOutcome{},
		}
	default:
		return fault.NewClientError(fmt.Sprintf("unknown branching type %q", kind), nil)
	}

	return nil
}

func (s *branchingServiceImpl) SetResponseOutcome(index int, responseValue string, kind models.BranchingType, target int) error {
	if index < 0 || index >= len(s.questions) {
		return fault.NewClientError("no question at index", fault.ErrNotFound)
	}

	q := &s.questions[index]
	if q.Branching == nil || q.Branching.Type != models.BranchingResponseBased {
		return fault.NewClientError("question has no response-based branching", fault.ErrInvalidState)
	}

	if q.Branching.ResponseValues == nil {
		q.Branching.ResponseValues = map[string]models.BranchOutcome{}
	}

	switch kind {
	case models.BranchingNextQuestion:
		// Revert the value to the implicit default.
		delete(q.Branching.ResponseValues, responseValue)
	case models.BranchingEnd:
		q.Branching.ResponseValues[responseValue] = models.BranchOutcome{End: true}
	case models.BranchingSpecificQuestion:
		q.Branching.ResponseValues[responseValue] = models.BranchOutcome{Target: target}
	default:
		return fault.NewClientError(fmt.Sprintf("unknown response outcome %q", kind), nil)
	}

	return nil
}

func (s *branchingServiceImpl) ResetBranching(index int) {
	if index < 0 || index >= len(s.questions) {
		return
	}
	s.questions[index].Branching = nil
}

func (s *branchingServiceImpl) ClearAllBranching() {
	for i := range s.questions {
		s.questions[i].Branching = nil
	}
}

func (s *branchingServiceImpl) EffectiveEdges(index int) []int {
	if index < 0 || index >= len(s.questions) {
		return nil
	}

	q := s.questions[index]
	targets := map[int]struct{}{}
	endProduced := false

	if q.Branching != nil {
		switch q.Branching.Type {
		case models.BranchingEnd:
			endProduced = true
		case models.BranchingSpecificQuestion:
			targets[q.Branching.Target] = struct{}{}
		case models.BranchingResponseBased:
			for _, out := range q.Branching.ResponseValues {
				if out.End {
					endProduced = true
				} else {
					targets[out.Target] = struct{}{}
				}
			}
		}
	}

	if index < len(s.questions)-1 && !endProduced {
		targets[index+1] = struct{}{}
	}

	edges := make([]int, 0, len(targets))
	for t := range targets {
		edges = append(edges, t)
	}
	sort.Ints(edges)
	return edges
}

func (s *branchingServiceImpl) DetectCycle() bool {
	n := len(s.questions)
	if n == 0 {
		return false
	}

	edges := make([][]int, n)
	for i := range s.questions {
		edges[i] = s.EffectiveEdges(i)
	}

	// Depth-first from question 0, tracking only the current path. A node
	// reachable over two paths (a diamond) is not a cycle; only a node
	// reappearing on its own path is.
	type frame struct {
		node int
		next int
	}

	onPath := make(map[int]bool, n)
	stack := []frame{{node: 0}}
	onPath[0] = true

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if top.next < len(edges[top.node]) {
			target := edges[top.node][top.next]
			top.next++

			if target < 0 || target >= n {
				// Dangling edge, terminal at this layer.
				continue
			}
			if onPath[target] {
				return true
			}

			onPath[target] = true
			stack = append(stack, frame{node: target})
			continue
		}

		onPath[top.node] = false
		stack = stack[:len(stack)-1]
	}

	return false
}

func (s *branchingServiceImpl) BranchingSummaryFor(index int) string {
	if index < 0 || index >= len(s.questions) {
		return ""
	}

	q := s.questions[index]
	if q.Branching == nil {
		return string(s.defaultBranchingType(index))
	}

	if q.Branching.Type == models.BranchingSpecificQuestion {
		return fmt.Sprintf("%s:%d", models.BranchingSpecificQuestion, q.Branching.Target)
	}
	return string(q.Branching.Type)
}

func (s *branchingServiceImpl) ResponseOutcomeFor(index int, responseValue string) string {
	if index < 0 || index >= len(s.questions) {
		return ""
	}

	q := s.questions[index]
	if q.Branching != nil && q.Branching.Type == models.BranchingResponseBased {
		if out, ok := q.Branching.ResponseValues[responseValue]; ok {
			if out.End {
				return string(models.BranchingEnd)
			}
			return fmt.Sprintf("%s:%d", models.BranchingSpecificQuestion, out.Target)
		}
	}
	return string(s.defaultBranchingType(index))
}

func (s *branchingServiceImpl) HasAnyBranching() bool {
	for _, q := range s.questions {
		if q.Branching != nil {
			return true
		}
	}
	return false
}

func (s *branchingServiceImpl) NextForAnswer(index int, answer string) models.BranchOutcome {
	if index < 0 || index >= len(s.questions) {
		return models.BranchOutcome{End: true}
	}

	q := s.questions[index]
	if q.Branching != nil {
		switch q.Branching.Type {
		case models.BranchingEnd:
			return models.BranchOutcome{End: true}
		case models.BranchingSpecificQuestion:
			return models.BranchOutcome{Target: q.Branching.Target}
		case models.BranchingResponseBased:
			if out, ok := q.Branching.ResponseValues[answer]; ok {
				return out
			}
		}
	}
	return s.defaultNext(index)
}

// defaultNext is the implicit flow: the following question, or the end of
// the survey after the last one.
func (s *branchingServiceImpl) defaultNext(index int) models.BranchOutcome {
	if index >= len(s.questions)-1 {
		return models.BranchOutcome{End: true}
	}
	return models.BranchOutcome{Target: index + 1}
}

func (s *branchingServiceImpl) defaultBranchingType(index int) models.BranchingType {
	if index >= len(s.questions)-1 {
		return models.BranchingEnd
	}
	return models.BranchingNextQuestion
}
