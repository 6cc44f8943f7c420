package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"lunchbot/models"
	"lunchbot/slackmsg"
	"lunchbot/statemachine"
	"lunchbot/store"

	"github.com/slack-go/slack"
)

// Click is one button press from an interactive message.
type Click struct {
	ActionID string
	Value    string
	UserID   string
}

// HandleAction answers a button click. The reply is meant for the
// interaction's response_url.
func (s *Sequencer) HandleAction(ctx context.Context, click Click) (slack.Msg, error) {
	action, err := statemachine.ParseAction(click.ActionID)
	if err != nil {
		return slack.Msg{}, fmt.Errorf("unexpected button: %w", err)
	}

	switch action.Trigger {
	case statemachine.TriggerConfirmAdd, statemachine.TriggerCancelAdd:
		return s.confirmAdd(ctx, click, action.Trigger)
	case statemachine.TriggerRemoveRestaurant:
		return s.removeRestaurant(ctx, click)
	default:
		return s.answer(ctx, click, action)
	}
}

const alreadyHandled = "This restaurant was already added or cancelled."

// confirmAdd commits or discards a staged restaurant. A staged row means
// the add flow is awaiting confirmation; no row means it is done.
func (s *Sequencer) confirmAdd(ctx context.Context, click Click, trigger statemachine.Trigger) (slack.Msg, error) {
	state := models.StateAwaitingAddConfirmation
	pending, err := s.catalog.Pending(ctx, click.Value)
	if errors.Is(err, store.ErrNotFound) {
		state = models.StateDone
	} else if err != nil {
		return slack.Msg{}, err
	}
	if err := statemachine.CanTransition(state, trigger); err != nil {
		return slackmsg.Replace(alreadyHandled), nil
	}
	if pending.StagedBy != click.UserID {
		return slack.Msg{}, userErrorf("Only %s can confirm this restaurant.", slackmsg.Mention(pending.StagedBy))
	}

	if trigger == statemachine.TriggerCancelAdd {
		if err := s.catalog.Discard(ctx, pending.ID); errors.Is(err, store.ErrNotFound) {
			return slackmsg.Replace(alreadyHandled), nil
		} else if err != nil {
			return slack.Msg{}, err
		}
		return slackmsg.Replace(fmt.Sprintf("Cancelled. *%s* was not added.", pending.Name)), nil
	}

	restaurant, err := s.catalog.Commit(ctx, pending.ID)
	if errors.Is(err, store.ErrNotFound) {
		return slackmsg.Replace(alreadyHandled), nil
	}
	if err != nil {
		return slack.Msg{}, err
	}
	s.logger.Info("restaurant added", "restaurant", restaurant.ID, "user", click.UserID, "name", restaurant.Name)
	return slackmsg.RestaurantAdded(*restaurant), nil
}

// removeRestaurant deletes a catalog entry and re-renders the list the
// button was on.
func (s *Sequencer) removeRestaurant(ctx context.Context, click Click) (slack.Msg, error) {
	id, err := strconv.ParseUint(click.Value, 10, 64)
	if err != nil {
		return slack.Msg{}, fmt.Errorf("remove-restaurant value %q: %w", click.Value, err)
	}
	err = s.catalog.Delete(ctx, uint(id))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return slack.Msg{}, err
	}
	if err == nil {
		s.logger.Info("restaurant removed", "restaurant", id, "user", click.UserID)
	}

	restaurants, err := s.catalog.List(ctx)
	if err != nil {
		return slack.Msg{}, err
	}
	msg := slackmsg.RestaurantList(restaurants)
	msg.ReplaceOriginal = true
	return msg, nil
}
