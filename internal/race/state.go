package race

import (
	"fmt"
	"time"
)

// State is the coordinator's position in one invocation.
type State string

const (
	Idle     State = "idle"
	Racing   State = "racing"
	Blocking State = "blocking"
	Awaiting State = "awaiting"
	Terminal State = "terminal"
)

// Transition records one state change, timed from the start of Run.
type Transition struct {
	From State         `json:"from"`
	To   State         `json:"to"`
	At   time.Duration `json:"at"`
}

// IsTerminal reports whether no further transitions are possible.
func IsTerminal(s State) bool {
	return s == Terminal
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case Idle:
		// Idle -> Terminal only when the collaborators were rejected up front.
		return to == Racing || to == Terminal
	case Racing:
		return to == Blocking || to == Awaiting
	case Blocking, Awaiting:
		return to == Terminal
	default:
		return false
	}
}

// machine tracks the state of a single Run. It is owned by the coordinator
// goroutine and never shared.
type machine struct {
	start    time.Time
	state    State
	log      []Transition
	observer func(Transition)
}

func newMachine(observer func(Transition)) *machine {
	return &machine{
		start:    time.Now(),
		state:    Idle,
		log:      make([]Transition, 0, 3),
		observer: observer,
	}
}

// to moves the machine to next. A disallowed transition is a coordinator bug.
func (m *machine) to(next State) {
	if !isAllowedTransition(m.state, next) {
		panic(fmt.Sprintf("race: disallowed transition %s -> %s", m.state, next))
	}
	t := Transition{From: m.state, To: next, At: time.Since(m.start)}
	m.state = next
	m.log = append(m.log, t)
	if m.observer != nil {
		m.observer(t)
	}
}

func (m *machine) elapsed() time.Duration {
	return time.Since(m.start)
}
