package conversation

import "fmt"

// State is the position of a resident's conversation.
type State string

const (
	StateIdle            State = "idle"
	StateCollecting      State = "collecting"
	StatePreview         State = "preview"
	StateEditing         State = "editing"
	StateAwaitingPhoto   State = "awaiting_photo"
	StateConfirmingSplit State = "confirming_split"
	StateConfirmed       State = "confirmed"
	StateCancelled       State = "cancelled"
	StateClosed          State = "closed"
)

var allStates = []State{
	StateIdle, StateCollecting, StatePreview, StateEditing, StateAwaitingPhoto,
	StateConfirmingSplit, StateConfirmed, StateCancelled, StateClosed,
}

func ParseState(s string) (State, error) {
	for _, st := range allStates {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("conversation: unknown state %q", s)
}

// holdsTicket reports whether the session points at a ticket in this state.
func (s State) holdsTicket() bool {
	switch s {
	case StatePreview, StateEditing, StateAwaitingPhoto, StateConfirmed:
		return true
	}
	return false
}

// atRest reports whether the session is outside any dialogue, so free text
// starts a new report and small-talk filters apply.
func (s State) atRest() bool {
	return s == StateIdle || s == StateConfirmed || s == StateCancelled
}

// Input is the category of one inbound message as the state machine sees it.
type Input int

const (
	InputText Input = iota
	InputChoice1
	InputChoice2
	InputChoice3
	InputChoice4
	InputChoice5
	InputPhoto
	InputNewIssue
	InputCompound
	InputEmpty
)

var allInputs = []Input{
	InputText, InputChoice1, InputChoice2, InputChoice3, InputChoice4, InputChoice5,
	InputPhoto, InputNewIssue, InputCompound, InputEmpty,
}

func (i Input) String() string {
	switch i {
	case InputText:
		return "text"
	case InputChoice1, InputChoice2, InputChoice3, InputChoice4, InputChoice5:
		return fmt.Sprintf("choice_%d", int(i-InputChoice1)+1)
	case InputPhoto:
		return "photo"
	case InputNewIssue:
		return "new_issue"
	case InputCompound:
		return "compound"
	case InputEmpty:
		return "empty"
	}
	return fmt.Sprintf("input(%d)", int(i))
}

type route struct {
	state State
	input Input
}
