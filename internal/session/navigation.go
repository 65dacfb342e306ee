package session

import "carbon-quiz/internal/domain"

// Navigator tracks the current question index. It only moves through Advance
// and Retreat.
type Navigator struct {
	current int
	total   int
}

// NewNavigator starts at the first of total questions.
func NewNavigator(total int) Navigator {
	return Navigator{total: total}
}

func (n *Navigator) Reset(total int) {
	n.current = 0
	n.total = total
}

func (n Navigator) Current() int { return n.current }
func (n Navigator) Total() int   { return n.total }

// Advance moves to the next question. Navigation is strict: the current
// question must be answered. On the last question it reports completion
// instead of moving.
func (n *Navigator) Advance(answered bool) (complete bool, err error) {
	if n.total == 0 {
		return false, domain.ErrIndexOutOfRange
	}
	if !answered {
		return false, domain.ErrUnanswered
	}
	if n.current+1 == n.total {
		return true, nil
	}
	n.current++
	return false, nil
}

// Retreat moves back one question. It reports false at the first question.
func (n *Navigator) Retreat() bool {
	if n.current == 0 {
		return false
	}
	n.current--
	return true
}
