package conversation

import (
	"context"
	"fmt"
)

// action performs one transition on st. Returning an error aborts the message
// and leaves the stored session untouched.
type action func(ctx context.Context, st *step, m *message) error

var choices = []Input{InputChoice1, InputChoice2, InputChoice3, InputChoice4, InputChoice5}

// transitions is the full (state, input) table. Later entries override earlier ones.
func (e *Engine) transitions() map[route]action {
	t := make(map[route]action, len(allStates)*len(allInputs))
	on := func(s State, fn action, inputs ...Input) {
		for _, in := range inputs {
			t[route{s, in}] = fn
		}
	}

	// At rest, free text is a fresh report.
	for _, s := range []State{StateIdle, StateConfirmed, StateCancelled} {
		on(s, e.intake, InputText, InputNewIssue, InputCompound)
		on(s, e.intake, choices...)
		on(s, e.reply("describe_first"), InputPhoto)
		on(s, e.reply("not_understood"), InputEmpty)
	}
	on(StateConfirmed, e.replayConfirm, InputChoice1)

	on(StatePreview, e.reply("menu_reprompt"), allInputs...)
	on(StatePreview, e.confirm, InputChoice1)
	on(StatePreview, e.moveTo(StateEditing, "edit_prompt"), InputChoice2)
	on(StatePreview, e.toggleLocation, InputChoice3)
	on(StatePreview, e.moveTo(StateAwaitingPhoto, "photo_prompt"), InputChoice4)
	on(StatePreview, e.cancel, InputChoice5)

	on(StateEditing, e.reply("edit_reprompt"), allInputs...)
	on(StateEditing, e.applyEdit, InputText, InputNewIssue, InputCompound)

	on(StateAwaitingPhoto, e.reply("photo_reprompt"), allInputs...)
	on(StateAwaitingPhoto, e.attachPhoto, InputPhoto)

	on(StateConfirmingSplit, e.reply("split_reprompt"), allInputs...)
	on(StateConfirmingSplit, e.fileCombined, InputChoice1)
	on(StateConfirmingSplit, e.oneAtATime, InputChoice2)

	on(StateClosed, e.reply("closed_reprompt"), allInputs...)
	on(StateClosed, e.moveTo(StateCollecting, "continue_prompt"), InputChoice1)
	on(StateClosed, e.startOver, InputChoice2, InputNewIssue)
	on(StateClosed, e.holdCompound, InputCompound)

	on(StateCollecting, e.reply("continue_prompt"), choices...)
	on(StateCollecting, e.continuePrevious, InputText)
	on(StateCollecting, e.startOver, InputNewIssue)
	on(StateCollecting, e.holdCompound, InputCompound)
	on(StateCollecting, e.reply("describe_first"), InputPhoto)
	on(StateCollecting, e.reply("not_understood"), InputEmpty)

	return t
}

// checkTable fails when any (state, input) pair has no action.
func checkTable(t map[route]action) error {
	for _, s := range allStates {
		for _, in := range allInputs {
			if t[route{s, in}] == nil {
				return fmt.Errorf("conversation: no transition for state %s and input %s", s, in)
			}
		}
	}
	return nil
}
