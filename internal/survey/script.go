// Package survey walks a campaign's branching interaction-step script.
//
// Steps are held in an arena indexed by id. Children are found by scanning
// answer options, so the "tree" shape is checked while walking rather than
// guaranteed by construction: every traversal is bounded by the number of
// steps and reports a ConfigurationError instead of looping.
package survey

import (
	"fmt"

	appErrors "github.com/unclebandit/canvass-backend/internal/errors"
	"github.com/unclebandit/canvass-backend/internal/model"
)

type AnswerOption struct {
	Value      string `json:"value"`
	Action     string `json:"action,omitempty"`
	NextStepID int    `json:"next_step_id,omitempty"`
}

type Step struct {
	ID            int            `json:"id"`
	ParentID      int            `json:"parent_id,omitempty"`
	Question      string         `json:"question"`
	Script        string         `json:"script"`
	AnswerOptions []AnswerOption `json:"answer_options"`
}

func (s *Step) option(value string) *AnswerOption {
	for i := range s.AnswerOptions {
		if s.AnswerOptions[i].Value == value {
			return &s.AnswerOptions[i]
		}
	}
	return nil
}

// Responses maps interaction step id to the recorded answer value.
type Responses map[int]string

func (r Responses) clone() Responses {
	out := make(Responses, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

type Script struct {
	campaignID int
	rootID     int
	steps      map[int]*Step
	order      []int
}

// NewScript validates steps and builds the arena. It requires exactly one
// root (ParentID 0) and every answer option to point at a known step.
func NewScript(campaignID int, steps []Step) (*Script, error) {
	s := &Script{campaignID: campaignID, steps: make(map[int]*Step, len(steps))}
	for i := range steps {
		step := steps[i]
		if step.ID == 0 {
			return nil, s.configError("step without id")
		}
		if _, dup := s.steps[step.ID]; dup {
			return nil, s.configError("duplicate step %d", step.ID)
		}
		s.steps[step.ID] = &step
		s.order = append(s.order, step.ID)
	}

	roots := 0
	for _, id := range s.order {
		step := s.steps[id]
		if step.ParentID == 0 {
			roots++
			s.rootID = id
		} else if _, ok := s.steps[step.ParentID]; !ok {
			return nil, s.configError("step %d has unknown parent %d", id, step.ParentID)
		}
		for _, opt := range step.AnswerOptions {
			if opt.NextStepID == 0 {
				continue
			}
			if _, ok := s.steps[opt.NextStepID]; !ok {
				return nil, s.configError("answer %q on step %d points to unknown step %d", opt.Value, id, opt.NextStepID)
			}
		}
	}
	switch {
	case roots == 0:
		return nil, s.configError("no root step")
	case roots > 1:
		return nil, s.configError("%d root steps", roots)
	}
	return s, nil
}

// FromInteractionSteps builds a Script from persisted rows, turning each
// child's answer_option into an answer option on its parent.
func FromInteractionSteps(campaignID int, rows []model.InteractionStep) (*Script, error) {
	steps := make([]Step, 0, len(rows))
	index := make(map[int]int, len(rows))
	for _, r := range rows {
		if r.IsDeleted {
			continue
		}
		step := Step{ID: r.ID, Question: r.Question, Script: r.Script}
		if r.ParentInteractionID != nil {
			step.ParentID = *r.ParentInteractionID
		}
		index[r.ID] = len(steps)
		steps = append(steps, step)
	}
	for _, r := range rows {
		if r.IsDeleted || r.ParentInteractionID == nil {
			continue
		}
		parent, ok := index[*r.ParentInteractionID]
		if !ok {
			return nil, &appErrors.ConfigurationError{
				CampaignID: campaignID,
				Reason:     fmt.Sprintf("step %d has unknown parent %d", r.ID, *r.ParentInteractionID),
			}
		}
		steps[parent].AnswerOptions = append(steps[parent].AnswerOptions, AnswerOption{
			Value:      r.AnswerOption,
			Action:     r.AnswerActions,
			NextStepID: r.ID,
		})
	}
	return NewScript(campaignID, steps)
}

func (s *Script) CampaignID() int { return s.campaignID }

func (s *Script) Len() int { return len(s.steps) }

func (s *Script) Root() Step { return *s.steps[s.rootID] }

func (s *Script) Step(id int) (Step, bool) {
	step, ok := s.steps[id]
	if !ok {
		return Step{}, false
	}
	return *step, true
}

// Steps returns every step in insertion order.
func (s *Script) Steps() []Step {
	out := make([]Step, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.steps[id])
	}
	return out
}

// AvailableSteps returns the root-first path a texter can currently see:
// each recorded answer that matches an option with a next step extends it.
func (s *Script) AvailableSteps(responses Responses) ([]Step, error) {
	var path []Step
	step := s.steps[s.rootID]
	for step != nil {
		if len(path) >= len(s.steps) {
			return nil, s.configError("answer path revisits step %d", step.ID)
		}
		path = append(path, *step)

		value, ok := responses[step.ID]
		if !ok || value == "" {
			break
		}
		opt := step.option(value)
		if opt == nil || opt.NextStepID == 0 {
			break
		}
		step = s.steps[opt.NextStepID]
	}
	return path, nil
}

// CurrentStep is the last available step, the one the texter answers next.
func (s *Script) CurrentStep(responses Responses) (Step, error) {
	path, err := s.AvailableSteps(responses)
	if err != nil {
		return Step{}, err
	}
	return path[len(path)-1], nil
}

// Descendants lists every step reachable from stepID through answer
// options, breadth first, excluding stepID itself.
func (s *Script) Descendants(stepID int) ([]int, error) {
	start, ok := s.steps[stepID]
	if !ok {
		return nil, appErrors.NewNotFound("interaction step", stepID)
	}
	var out []int
	seen := map[int]bool{stepID: true}
	queue := []*Step{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, opt := range cur.AnswerOptions {
			if opt.NextStepID == 0 {
				continue
			}
			if opt.NextStepID == stepID {
				return nil, s.configError("step %d is its own descendant", stepID)
			}
			if seen[opt.NextStepID] {
				continue
			}
			seen[opt.NextStepID] = true
			out = append(out, opt.NextStepID)
			queue = append(queue, s.steps[opt.NextStepID])
		}
	}
	return out, nil
}

// ApplyResponse records value for stepID and returns the updated responses
// together with the descendant steps whose answers were cleared. An empty
// value removes the answer. responses is not modified.
func (s *Script) ApplyResponse(responses Responses, stepID int, value string) (Responses, []int, error) {
	if _, ok := s.steps[stepID]; !ok {
		return nil, nil, appErrors.NewNotFound("interaction step", stepID)
	}
	out := responses.clone()
	if old, ok := responses[stepID]; ok && old == value {
		return out, nil, nil
	}
	if value == "" {
		delete(out, stepID)
	} else {
		out[stepID] = value
	}

	descendants, err := s.Descendants(stepID)
	if err != nil {
		return nil, nil, err
	}
	var cleared []int
	for _, id := range descendants {
		if _, ok := out[id]; ok {
			delete(out, id)
			cleared = append(cleared, id)
		}
	}
	return out, cleared, nil
}

func (s *Script) configError(format string, args ...any) error {
	return &appErrors.ConfigurationError{CampaignID: s.campaignID, Reason: fmt.Sprintf(format, args...)}
}
