package music

import "strings"

// State is the classified progress of a provider task.
type State int

const (
	StatePending State = iota
	StateProcessing
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateProcessing:
		return "processing"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether polling stops at this state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Status is one observation of a task. Artifacts is set only for StateSucceeded.
type Status struct {
	State        State
	Raw          string
	Attempt      int
	Artifacts    []Artifact
	ErrorCode    string
	ErrorMessage string
}

var defaultFailureStatuses = []string{"FAILED", "ERROR"}

// classifier maps raw provider strings onto states. Matching is case-insensitive
// and any value it does not know is treated as still processing.
type classifier struct {
	failures map[string]struct{}
}

func newClassifier(extraFailures []string) classifier {
	c := classifier{failures: make(map[string]struct{}, len(defaultFailureStatuses)+len(extraFailures))}
	for _, s := range defaultFailureStatuses {
		c.failures[s] = struct{}{}
	}
	for _, s := range extraFailures {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			c.failures[s] = struct{}{}
		}
	}
	return c
}

func (c classifier) classify(raw string) State {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if upper == "SUCCESS" {
		return StateSucceeded
	}
	if _, ok := c.failures[upper]; ok {
		return StateFailed
	}
	if upper == "PENDING" {
		return StatePending
	}
	return StateProcessing
}
