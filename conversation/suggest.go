package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lunchbot/commands"
	"lunchbot/models"
	"lunchbot/platform"
	"lunchbot/slackmsg"
	"lunchbot/statemachine"
	"lunchbot/store"

	"github.com/slack-go/slack"
)

const suggestUsage = "Usage: `/suggest @alice @bob`, `/suggest cancel` or `/suggest leave`"

// suggest validates every mention before touching any store, so a bad
// mention leaves no session behind and sends no message.
func (s *Sequencer) suggest(ctx context.Context, initiatorID, channelID, text string) (slack.Msg, error) {
	tokens := strings.Fields(text)
	if len(tokens) == 1 && tokens[0] == "cancel" {
		return s.cancelSessions(ctx, initiatorID)
	}
	if len(tokens) == 1 && tokens[0] == "leave" {
		return s.leaveSessions(ctx, initiatorID)
	}
	if len(tokens) == 0 {
		return slack.Msg{}, userErrorf("Who is coming to lunch? %s", suggestUsage)
	}

	userIDs, err := commands.ParseMentions(tokens)
	var mentionErr *commands.MentionError
	if errors.As(err, &mentionErr) {
		return slack.Msg{}, userErrorf("`%s` is not a valid user mention. No lunch session was started.", mentionErr.Token)
	} else if err != nil {
		return slack.Msg{}, err
	}

	for _, id := range userIDs {
		if err := s.platform.LookupUser(ctx, id); err != nil {
			if errors.Is(err, platform.ErrUnknownUser) {
				return slack.Msg{}, userErrorf("`<@%s>` is not someone I can invite. No lunch session was started.", id)
			}
			return slack.Msg{}, err
		}
	}

	busy, err := s.sessions.ActiveFor(ctx, userIDs)
	if err != nil {
		return slack.Msg{}, err
	}
	if len(busy) > 0 {
		return slack.Msg{}, userErrorf("%s is already in another lunch session. No lunch session was started.",
			slackmsg.Mention(busy[0].UserID))
	}

	first, err := statemachine.Next(statemachine.None, statemachine.TriggerSuggest)
	if err != nil {
		return slack.Msg{}, err
	}
	session, err := s.sessions.Create(ctx, initiatorID, channelID, userIDs, first)
	if err != nil {
		return slack.Msg{}, err
	}
	s.logger.Info("session created", "session", session.ID, "initiator", initiatorID, "participants", len(userIDs))

	promptText, blocks := slackmsg.TimePrompt(session.ID, initiatorID)
	msgs := make([]platform.Outgoing, 0, len(userIDs))
	for _, id := range userIDs {
		msgs = append(msgs, platform.Outgoing{UserID: id, Text: promptText, Blocks: blocks})
	}
	s.background(ctx, "time prompts", func(ctx context.Context) {
		s.reportUndelivered(ctx, session.ID, initiatorID, s.broadcast(ctx, msgs))
	})

	mentions := make([]string, len(userIDs))
	for i, id := range userIDs {
		mentions[i] = slackmsg.Mention(id)
	}
	return slackmsg.Ephemeral(fmt.Sprintf("I've asked %s about lunch. Everyone gets suggestions once all have answered.",
		strings.Join(mentions, ", "))), nil
}

// reportUndelivered tells the initiator who could not be reached, since the
// session cannot complete without them.
func (s *Sequencer) reportUndelivered(ctx context.Context, sessionID, initiatorID string, results []platform.Delivery) {
	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, slackmsg.Mention(r.UserID))
		}
	}
	if len(failed) == 0 {
		return
	}
	s.logger.Warn("time prompts undelivered", "session", sessionID, "failed", len(failed))
	text := fmt.Sprintf("I couldn't message %s. Use `/suggest cancel` and start again if they can't answer.",
		strings.Join(failed, ", "))
	if err := s.platform.DirectMessage(ctx, initiatorID, text, nil); err != nil {
		s.logger.Error("notify initiator failed", "session", sessionID, "user", initiatorID, "error", err)
	}
}

// answer handles the time, price and tag buttons of a session prompt. The
// button value carries the session id.
func (s *Sequencer) answer(ctx context.Context, click Click, action statemachine.Action) (slack.Msg, error) {
	session, err := s.sessions.Get(ctx, click.Value)
	if errors.Is(err, store.ErrNotFound) {
		return slackmsg.Replace("This lunch session is over."), nil
	}
	if err != nil {
		return slack.Msg{}, err
	}
	participant, ok := session.Participant(click.UserID)
	if !ok {
		return slack.Msg{}, userErrorf("You are not part of this lunch session.")
	}

	next, err := statemachine.Next(participant.Step, action.Trigger)
	if err != nil {
		s.logger.Debug("stale click ignored", "session", session.ID, "user", click.UserID, "reason", err)
		if store.IsComplete(*session) {
			return slack.Msg{}, userErrorf("Everyone has answered, suggestions are on their way.")
		}
		if participant.Step == models.StateFinished {
			return slack.Msg{}, userErrorf("You've already sent your answers for this lunch.")
		}
		return slack.Msg{}, userErrorf("That question was already answered.")
	}

	switch action.Trigger {
	case statemachine.TriggerAnswerTime:
		n := action.Number()
		if err := s.filters.SetTimeLimit(ctx, click.UserID, n); err != nil {
			return slack.Msg{}, err
		}
		if err := s.sessions.Advance(ctx, session.ID, click.UserID, next); err != nil {
			return slack.Msg{}, err
		}
		text, blocks := slackmsg.PricePrompt(session.ID, n)
		return slackmsg.Replace(text, blocks...), nil

	case statemachine.TriggerAnswerPrice:
		if err := s.filters.SetPriceLimit(ctx, click.UserID, action.Number()); err != nil {
			return slack.Msg{}, err
		}
		if err := s.sessions.Advance(ctx, session.ID, click.UserID, next); err != nil {
			return slack.Msg{}, err
		}
		filter, err := s.filters.Get(ctx, click.UserID)
		if err != nil {
			return slack.Msg{}, err
		}
		return s.tagPrompt(ctx, session.ID, filter)

	case statemachine.TriggerToggleTag:
		filter, err := s.filters.ToggleExcludedTag(ctx, click.UserID, action.Arg)
		if err != nil {
			return slack.Msg{}, err
		}
		return s.tagPrompt(ctx, session.ID, filter)

	case statemachine.TriggerFinishTags:
		return s.finish(ctx, session, click.UserID)
	}
	return slack.Msg{}, fmt.Errorf("trigger %q has no handler", action.Trigger)
}

func (s *Sequencer) tagPrompt(ctx context.Context, sessionID string, filter models.Filter) (slack.Msg, error) {
	tags, err := s.catalog.Tags(ctx)
	if err != nil {
		return slack.Msg{}, err
	}
	// keep tags the user excluded earlier even if no restaurant uses them now
	for _, t := range filter.ExcludedTags {
		found := false
		for _, have := range tags {
			if have == t {
				found = true
				break
			}
		}
		if !found {
			tags = append(tags, t)
		}
	}
	text, blocks := slackmsg.TagPrompt(sessionID, tags, filter)
	return slackmsg.Replace(text, blocks...), nil
}

func (s *Sequencer) finish(ctx context.Context, session *models.Session, userID string) (slack.Msg, error) {
	claimed, err := s.sessions.MarkFinished(ctx, session.ID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return slackmsg.Replace("This lunch session is over."), nil
	}
	if err != nil {
		return slack.Msg{}, err
	}
	filter, err := s.filters.Get(ctx, userID)
	if err != nil {
		return slack.Msg{}, err
	}
	if claimed {
		if _, err := statemachine.Next(models.StateFinished, statemachine.TriggerAllFinished); err != nil {
			return slack.Msg{}, err
		}
		s.logger.Info("session complete", "session", session.ID)
		s.dispatchSuggestions(ctx, session)
	}
	return slackmsg.Waiting(filter, claimed), nil
}

// dispatchSuggestions runs the suggestion engine and DMs the result to every
// participant, then removes the session. Only the caller that claimed the
// session's completion gets here.
func (s *Sequencer) dispatchSuggestions(ctx context.Context, session *models.Session) {
	sessionID, channelID, userIDs := session.ID, session.ChannelID, session.UserIDs()
	s.background(ctx, "suggestions", func(ctx context.Context) {
		crit, matches, err := s.engine.Suggest(ctx, userIDs)
		var text string
		var blocks []slack.Block
		if err != nil {
			s.logger.Error("suggestion failed", "session", sessionID, "error", err)
			text = "Sorry, I couldn't look up restaurants for this lunch."
		} else {
			text, blocks = slackmsg.Suggestions(crit, matches)
		}

		msgs := make([]platform.Outgoing, 0, len(userIDs))
		for _, id := range userIDs {
			msgs = append(msgs, platform.Outgoing{UserID: id, Text: text, Blocks: blocks})
		}
		var delivered []string
		for _, r := range s.broadcast(ctx, msgs) {
			if r.Err == nil {
				delivered = append(delivered, r.UserID)
			}
		}
		s.logger.Info("suggestions dispatched", "session", sessionID, "matches", len(matches), "delivered", len(delivered), "recipients", len(msgs))

		if channelID != "" && len(delivered) > 0 {
			notice := slackmsg.SuggestionsSent(delivered)
			if err := s.platform.PostMessage(ctx, channelID, notice, nil); err != nil {
				s.logger.Warn("channel notice failed", "session", sessionID, "channel", channelID, "error", err)
			}
		}

		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			s.logger.Error("delete session failed", "session", sessionID, "error", err)
		}
	})
}

// leaveSessions takes userID out of every open session they were invited
// to. If that leaves a session with only finished participants, it is
// dispatched right away.
func (s *Sequencer) leaveSessions(ctx context.Context, userID string) (slack.Msg, error) {
	entries, err := s.sessions.ActiveFor(ctx, []string{userID})
	if err != nil {
		return slack.Msg{}, err
	}
	if len(entries) == 0 {
		return slackmsg.Ephemeral("You are not part of any lunch session."), nil
	}
	for _, p := range entries {
		claimed, err := s.sessions.Leave(ctx, p.SessionID, userID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return slack.Msg{}, err
		}
		s.logger.Info("participant left", "session", p.SessionID, "user", userID)
		if !claimed {
			continue
		}
		session, err := s.sessions.Get(ctx, p.SessionID)
		if err != nil {
			return slack.Msg{}, fmt.Errorf("load session %s after leave: %w", p.SessionID, err)
		}
		s.logger.Info("session complete", "session", session.ID)
		s.dispatchSuggestions(ctx, session)
	}
	return slackmsg.Ephemeral("You left your lunch session. You can be invited again."), nil
}
