package checkout

import (
	"fmt"

	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
)

// Stage is a checkout state-machine stage.
type Stage string

const (
	StageIdle                  Stage = "idle"
	StageOrderCreating         Stage = "order_creating"
	StageOrderCreated          Stage = "order_created"
	StagePaymentIntentCreating Stage = "payment_intent_creating"
	StagePaymentIntentCreated  Stage = "payment_intent_created"
	StagePaymentConfirming     Stage = "payment_confirming"
	StageSucceeded             Stage = "succeeded"
	StageFailed                Stage = "failed"
)

func (s Stage) String() string {
	return string(s)
}

// IsTerminal reports whether no further progress is possible for the attempt.
func (s Stage) IsTerminal() bool {
	return s == StageSucceeded || s == StageFailed
}

// InFlight reports whether an attempt is running.
func (s Stage) InFlight() bool {
	return s != StageIdle && !s.IsTerminal()
}

// State is the checkout state machine position. FailedStage and Reason are set
// only in StageFailed.
type State struct {
	Stage       Stage  `json:"stage"`
	FailedStage Stage  `json:"failed_stage,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Idle is the initial state.
func Idle() State {
	return State{Stage: StageIdle}
}

// EventKind names a state-machine input.
type EventKind string

const (
	EventSubmit           EventKind = "submit"
	EventOrderCreated     EventKind = "order_created"
	EventRequestIntent    EventKind = "request_intent"
	EventIntentCreated    EventKind = "intent_created"
	EventConfirm          EventKind = "confirm"
	EventPaymentSucceeded EventKind = "payment_succeeded"
	EventFail             EventKind = "fail"
	EventReset            EventKind = "reset"
)

// Event is a state-machine input. Reason is used by EventFail.
type Event struct {
	Kind   EventKind
	Reason string
}

// Fail builds a failure event.
func Fail(reason string) Event {
	return Event{Kind: EventFail, Reason: reason}
}

var forward = map[Stage]map[EventKind]Stage{
	StageIdle:                  {EventSubmit: StageOrderCreating},
	StageOrderCreating:         {EventOrderCreated: StageOrderCreated},
	StageOrderCreated:          {EventRequestIntent: StagePaymentIntentCreating},
	StagePaymentIntentCreating: {EventIntentCreated: StagePaymentIntentCreated},
	StagePaymentIntentCreated:  {EventConfirm: StagePaymentConfirming},
	StagePaymentConfirming:     {EventPaymentSucceeded: StageSucceeded},
}

// Transition computes the next state. It is pure: an illegal event returns a
// STATE_CONFLICT error together with the unchanged input state.
//
// Failures are accepted from any non-terminal stage other than Idle and record
// that stage. Reset returns a terminal state to Idle; an attempt never resumes
// from the middle.
func Transition(current State, ev Event) (State, error) {
	switch ev.Kind {
	case EventFail:
		if !current.Stage.InFlight() {
			return current, illegal(current, ev)
		}
		return State{Stage: StageFailed, FailedStage: current.Stage, Reason: ev.Reason}, nil
	case EventReset:
		if !current.Stage.IsTerminal() {
			return current, illegal(current, ev)
		}
		return Idle(), nil
	}

	next, ok := forward[current.Stage][ev.Kind]
	if !ok {
		return current, illegal(current, ev)
	}
	return State{Stage: next}, nil
}

func illegal(current State, ev Event) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot %s while checkout is %s", ev.Kind, current.Stage)).
		WithDetails(map[string]any{"stage": current.Stage, "event": ev.Kind})
}
