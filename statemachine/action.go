package statemachine

import (
	"fmt"
	"strconv"
	"strings"
)

// Trigger names what moves a conversation forward. Button-driven triggers
// double as the action id prefix carried by Slack buttons.
type Trigger string

const (
	TriggerSuggest       Trigger = "suggest"
	TriggerAddRestaurant Trigger = "add-restaurant"
	TriggerAllFinished   Trigger = "all-finished"

	TriggerAnswerTime  Trigger = "answer-time-limit"
	TriggerAnswerPrice Trigger = "answer-price-limit"
	TriggerToggleTag   Trigger = "answer-tag-exclude"
	TriggerFinishTags  Trigger = "finish-tag-exclude"
	TriggerConfirmAdd  Trigger = "confirm-add-restaurant-true"
	TriggerCancelAdd   Trigger = "confirm-add-restaurant-false"

	// Catalog maintenance, outside the conversation table
	TriggerRemoveRestaurant Trigger = "remove-restaurant"
)

// Action is a parsed button action id
type Action struct {
	Trigger Trigger
	Arg     string
}

// Number returns the numeric argument of an answer-*-limit action.
func (a Action) Number() int {
	n, _ := strconv.Atoi(a.Arg)
	return n
}

// ID renders the action id Slack will echo back on click.
func (a Action) ID() string {
	if a.Arg == "" {
		return string(a.Trigger)
	}
	return string(a.Trigger) + "-" + a.Arg
}

// ActionID builds an action id from a trigger and optional argument.
func ActionID(trigger Trigger, arg string) string {
	return Action{Trigger: trigger, Arg: arg}.ID()
}

var exactActions = map[string]Trigger{
	string(TriggerFinishTags):       TriggerFinishTags,
	string(TriggerConfirmAdd):       TriggerConfirmAdd,
	string(TriggerCancelAdd):        TriggerCancelAdd,
	string(TriggerRemoveRestaurant): TriggerRemoveRestaurant,
}

// ParseAction decodes a button action id.
func ParseAction(id string) (Action, error) {
	if t, ok := exactActions[id]; ok {
		return Action{Trigger: t}, nil
	}
	for _, t := range []Trigger{TriggerAnswerTime, TriggerAnswerPrice} {
		if arg, ok := strings.CutPrefix(id, string(t)+"-"); ok {
			n, err := strconv.Atoi(arg)
			if err != nil || n < 0 {
				return Action{}, fmt.Errorf("action %q: limit must be a non-negative integer", id)
			}
			return Action{Trigger: t, Arg: strconv.Itoa(n)}, nil
		}
	}
	if tag, ok := strings.CutPrefix(id, string(TriggerToggleTag)+"-"); ok && tag != "" {
		return Action{Trigger: TriggerToggleTag, Arg: tag}, nil
	}
	return Action{}, fmt.Errorf("unknown action id %q", id)
}
