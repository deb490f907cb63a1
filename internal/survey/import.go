package survey

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// MaxImportDepth bounds nested answers in an imported script.
const MaxImportDepth = 32

// Node is one question in an imported script document. Answers nest the
// follow-up question under the value that leads to it.
type Node struct {
	Script   string   `yaml:"script"`
	Question string   `yaml:"question"`
	Answers  []Answer `yaml:"answers"`
}

type Answer struct {
	Value  string `yaml:"value"`
	Action string `yaml:"action"`
	Next   *Node  `yaml:"next"`
}

// ParseScriptYAML decodes a script document such as
//
//	script: "Hi {firstName}, this is {texterFirstName}."
//	question: "Can we count on your vote?"
//	answers:
//	  - value: "Yes"
//	    next:
//	      script: "Great, thanks!"
//	  - value: "No"
//
// Unknown keys, empty answer values and duplicated values under one
// question are rejected.
func ParseScriptYAML(data []byte) (*Node, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var root Node
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty script document")
		}
		return nil, fmt.Errorf("decode script: %w", err)
	}
	if err := root.validate(1); err != nil {
		return nil, err
	}
	return &root, nil
}

func (n *Node) validate(depth int) error {
	if depth > MaxImportDepth {
		return fmt.Errorf("script nests deeper than %d questions", MaxImportDepth)
	}
	seen := make(map[string]bool, len(n.Answers))
	for _, a := range n.Answers {
		if a.Value == "" {
			return fmt.Errorf("answer without value under %q", n.Question)
		}
		if seen[a.Value] {
			return fmt.Errorf("duplicate answer %q under %q", a.Value, n.Question)
		}
		seen[a.Value] = true
		if a.Next != nil {
			if err := a.Next.validate(depth + 1); err != nil {
				return err
			}
		}
	}
	return nil
}

// Walk visits n and every nested question depth first. parentID is the
// id returned by visit for the enclosing question and answer is the value
// that leads from it; both are zero for the root.
func (n *Node) Walk(visit func(node *Node, parentID int, answer Answer) (int, error)) error {
	return n.walk(0, Answer{}, visit)
}

func (n *Node) walk(parentID int, via Answer, visit func(*Node, int, Answer) (int, error)) error {
	id, err := visit(n, parentID, via)
	if err != nil {
		return err
	}
	for _, a := range n.Answers {
		next := a.Next
		if next == nil {
			// A terminal answer still needs a row to carry its value.
			next = &Node{}
		}
		if err := next.walk(id, a, visit); err != nil {
			return err
		}
	}
	return nil
}

// Steps numbers the document's questions from 1 in walk order, producing
// the arena NewScript expects.
func (n *Node) Steps() []Step {
	var steps []Step
	index := map[int]int{}
	_ = n.Walk(func(node *Node, parentID int, answer Answer) (int, error) {
		id := len(steps) + 1
		steps = append(steps, Step{ID: id, ParentID: parentID, Question: node.Question, Script: node.Script})
		index[id] = len(steps) - 1
		if parentID != 0 {
			p := &steps[index[parentID]]
			p.AnswerOptions = append(p.AnswerOptions, AnswerOption{Value: answer.Value, Action: answer.Action, NextStepID: id})
		}
		return id, nil
	})
	return steps
}
