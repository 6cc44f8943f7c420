// Package platform talks to the Slack Web API on behalf of lunchbot.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/slack-go/slack"
)

// ErrUnknownUser is returned for ids that do not name a real, active human.
var ErrUnknownUser = errors.New("unknown user")

// SlackAPI is the subset of *slack.Client lunchbot calls.
type SlackAPI interface {
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type Slack struct {
	api        SlackAPI
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Slack adapter authenticated with a bot token.
func New(botToken string, logger *slog.Logger) *Slack {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	return NewWithAPI(slack.New(botToken, slack.OptionHTTPClient(httpClient)), httpClient, logger)
}

// NewWithAPI wraps an existing API client.
func NewWithAPI(api SlackAPI, httpClient *http.Client, logger *slog.Logger) *Slack {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Slack{api: api, httpClient: httpClient, logger: logger}
}

// LookupUser checks that userID is an active, non-bot workspace member.
func (s *Slack) LookupUser(ctx context.Context, userID string) error {
	user, err := s.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		var slackErr slack.SlackErrorResponse
		if errors.As(err, &slackErr) && (slackErr.Err == "user_not_found" || slackErr.Err == "user_not_visible") {
			return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
		}
		return fmt.Errorf("look up user %s: %w", userID, err)
	}
	if user.Deleted || user.IsBot {
		return fmt.Errorf("%w: %s", ErrUnknownUser, userID)
	}
	return nil
}

// DirectMessage opens (or reuses) the DM channel with userID and posts to it.
func (s *Slack) DirectMessage(ctx context.Context, userID, text string, blocks []slack.Block) error {
	channel, _, _, err := s.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users:    []string{userID},
		ReturnIM: true,
	})
	if err != nil {
		return fmt.Errorf("open DM with %s: %w", userID, err)
	}
	if err := s.PostMessage(ctx, channel.ID, text, blocks); err != nil {
		return fmt.Errorf("DM %s: %w", userID, err)
	}
	return nil
}

// PostMessage posts to a channel the bot is a member of.
func (s *Slack) PostMessage(ctx context.Context, channelID, text string, blocks []slack.Block) error {
	_, _, err := s.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("post to %s: %w", channelID, err)
	}
	return nil
}

// Respond posts msg to an interaction's response_url.
func (s *Slack) Respond(ctx context.Context, responseURL string, msg slack.Msg) error {
	if responseURL == "" {
		return errors.New("respond: empty response_url")
	}
	blocks := msg.Blocks
	webhook := &slack.WebhookMessage{
		Text:            msg.Text,
		Blocks:          &blocks,
		ResponseType:    msg.ResponseType,
		ReplaceOriginal: msg.ReplaceOriginal,
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, responseURL, s.httpClient, webhook); err != nil {
		return fmt.Errorf("post to response_url: %w", err)
	}
	return nil
}
