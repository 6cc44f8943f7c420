package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lunchbot/commands"
	"lunchbot/slackmsg"

	"github.com/slack-go/slack"
)

// Command is an inbound slash command.
type Command struct {
	// Name is the command without its leading slash, e.g. "add-restaurant".
	Name      string
	Text      string
	UserID    string
	ChannelID string
}

const helpText = "*lunchbot commands*\n" +
	"• `/add-restaurant <name> <address> <duration> <rating> <price> <tags...>` add a restaurant (`/add-restaurant help` for details)\n" +
	"• `/list-restaurants` show the catalog\n" +
	"• `/suggest @alice @bob` ask people for their preferences and send everyone suggestions\n" +
	"• `/suggest cancel` cancel the lunch sessions you started\n" +
	"• `/suggest leave` drop out of the lunch sessions you were invited to\n" +
	"• `/clear-filters` forget your stored time, price and tag preferences\n" +
	"Every command also works as `/lunchbot <command> ...`."

// HandleCommand answers a slash command. Errors wrapping *UserError are
// meant for the user; anything else is a failure to log.
func (s *Sequencer) HandleCommand(ctx context.Context, cmd Command) (slack.Msg, error) {
	name := strings.TrimPrefix(strings.TrimSpace(cmd.Name), "/")
	text := strings.TrimSpace(cmd.Text)
	if name == "lunchbot" {
		name, text, _ = strings.Cut(text, " ")
		text = strings.TrimSpace(text)
	}

	switch name {
	case "add-restaurant":
		return s.addRestaurant(ctx, cmd.UserID, text)
	case "list-restaurants":
		return s.listRestaurants(ctx)
	case "suggest":
		return s.suggest(ctx, cmd.UserID, cmd.ChannelID, text)
	case "clear-filters":
		return s.clearFilters(ctx, cmd.UserID)
	case "", "help":
		return slackmsg.Ephemeral(helpText), nil
	default:
		return slack.Msg{}, userErrorf("I don't know the command `%s`.\n%s", name, helpText)
	}
}

func (s *Sequencer) addRestaurant(ctx context.Context, userID, text string) (slack.Msg, error) {
	if text == "help" {
		return slackmsg.Ephemeral(commands.AddRestaurantUsage), nil
	}

	tokens, err := commands.Tokenize(text)
	if err != nil {
		return slack.Msg{}, userErrorf("I couldn't read those arguments (%v).\n%s", err, commands.AddRestaurantUsage)
	}
	pending, err := commands.ParseAddRestaurant(tokens)
	var fieldErr *commands.FieldError
	switch {
	case errors.Is(err, commands.ErrTooFewArgs):
		return slack.Msg{}, userErrorf("Not enough arguments.\n%s", commands.AddRestaurantUsage)
	case errors.As(err, &fieldErr):
		return slack.Msg{}, userErrorf("Invalid %s: %s. Nothing was added.", fieldErr.Field, fieldErr.Error())
	case err != nil:
		return slack.Msg{}, err
	}

	pending.StagedBy = userID
	if err := s.catalog.Stage(ctx, &pending); err != nil {
		return slack.Msg{}, err
	}
	s.logger.Info("restaurant staged", "pending_id", pending.ID, "user", userID, "name", pending.Name)
	return slackmsg.AddRestaurantConfirm(pending), nil
}

func (s *Sequencer) listRestaurants(ctx context.Context) (slack.Msg, error) {
	restaurants, err := s.catalog.List(ctx)
	if err != nil {
		return slack.Msg{}, err
	}
	return slackmsg.RestaurantList(restaurants), nil
}

func (s *Sequencer) clearFilters(ctx context.Context, userID string) (slack.Msg, error) {
	if err := s.filters.Clear(ctx, userID); err != nil {
		return slack.Msg{}, err
	}
	return slackmsg.Ephemeral("Your lunch preferences were cleared."), nil
}

func (s *Sequencer) cancelSessions(ctx context.Context, userID string) (slack.Msg, error) {
	sessions, err := s.sessions.InitiatedBy(ctx, userID)
	if err != nil {
		return slack.Msg{}, err
	}
	if len(sessions) == 0 {
		return slackmsg.Ephemeral("You have no lunch session in progress."), nil
	}
	for _, session := range sessions {
		if err := s.sessions.Delete(ctx, session.ID); err != nil {
			return slack.Msg{}, fmt.Errorf("cancel session %s: %w", session.ID, err)
		}
		s.logger.Info("session cancelled", "session", session.ID, "user", userID)
	}
	return slackmsg.Ephemeral(fmt.Sprintf("Cancelled %d lunch session(s).", len(sessions))), nil
}
