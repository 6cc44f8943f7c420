package statemachine

import (
	"fmt"
	"strings"

	"lunchbot/models"
)

// None is the state of a user with no conversation in progress
const None models.ConversationState = ""

// Transition defines a valid state change and the trigger that causes it
type Transition struct {
	From    models.ConversationState
	Trigger Trigger
	To      models.ConversationState
}

// validTransitions is the authoritative conversation definition
var validTransitions = []Transition{
	// Suggest flow, per invited user
	{From: None, Trigger: TriggerSuggest, To: models.StateAwaitingTime},
	{From: models.StateAwaitingTime, Trigger: TriggerAnswerTime, To: models.StateAwaitingPrice},
	{From: models.StateAwaitingPrice, Trigger: TriggerAnswerPrice, To: models.StateAwaitingTagExclude},
	{From: models.StateAwaitingTagExclude, Trigger: TriggerToggleTag, To: models.StateAwaitingTagExclude},
	{From: models.StateAwaitingTagExclude, Trigger: TriggerFinishTags, To: models.StateFinished},
	// Fired once when every participant has finished
	{From: models.StateFinished, Trigger: TriggerAllFinished, To: models.StateDone},

	// Add-restaurant flow
	{From: None, Trigger: TriggerAddRestaurant, To: models.StateAwaitingAddConfirmation},
	{From: models.StateAwaitingAddConfirmation, Trigger: TriggerConfirmAdd, To: models.StateDone},
	{From: models.StateAwaitingAddConfirmation, Trigger: TriggerCancelAdd, To: models.StateDone},
}

type transitionKey struct {
	From    models.ConversationState
	Trigger Trigger
}

var transitionMap = func() map[transitionKey]models.ConversationState {
	m := make(map[transitionKey]models.ConversationState)
	for _, t := range validTransitions {
		m[transitionKey{t.From, t.Trigger}] = t.To
	}
	return m
}()

// TriggersFrom returns the triggers accepted in a given state
func TriggersFrom(state models.ConversationState) []Trigger {
	var triggers []Trigger
	for _, t := range validTransitions {
		if t.From == state {
			triggers = append(triggers, t.Trigger)
		}
	}
	return triggers
}

// Next returns the state reached by firing trigger in state from
func Next(from models.ConversationState, trigger Trigger) (models.ConversationState, error) {
	if to, ok := transitionMap[transitionKey{From: from, Trigger: trigger}]; ok {
		return to, nil
	}
	return "", fmt.Errorf("invalid transition: %q is not accepted in state %s; accepted: %s",
		trigger, describeState(from), describeTriggersFrom(from))
}

// CanTransition reports whether trigger is accepted in state from
func CanTransition(from models.ConversationState, trigger Trigger) error {
	_, err := Next(from, trigger)
	return err
}

func describeState(s models.ConversationState) string {
	if s == None {
		return "NONE"
	}
	return string(s)
}

func describeTriggersFrom(state models.ConversationState) string {
	triggers := TriggersFrom(state)
	if len(triggers) == 0 {
		return "none (terminal state)"
	}
	names := make([]string, len(triggers))
	for i, t := range triggers {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// GetAllTransitions returns the full state machine for documentation
func GetAllTransitions() []Transition {
	return validTransitions
}
