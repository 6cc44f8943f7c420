package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"lunchbot/conversation"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
)

// Bot answers slash commands and button clicks.
type Bot interface {
	HandleCommand(ctx context.Context, cmd conversation.Command) (slack.Msg, error)
	HandleAction(ctx context.Context, click conversation.Click) (slack.Msg, error)
}

// Responder posts a reply to an interaction's response_url.
type Responder interface {
	Respond(ctx context.Context, responseURL string, msg slack.Msg) error
}

// replyTimeout bounds handling one click and posting its reply.
const replyTimeout = 30 * time.Second

// SlackHandler serves Slack's slash command and interactivity webhooks.
type SlackHandler struct {
	bot       Bot
	responder Responder
	logger    *slog.Logger

	replies sync.WaitGroup
}

func NewSlackHandler(bot Bot, responder Responder, logger *slog.Logger) *SlackHandler {
	return &SlackHandler{bot: bot, responder: responder, logger: logger}
}

// Wait blocks until every pending interaction reply has been posted.
func (h *SlackHandler) Wait() {
	h.replies.Wait()
}

// SlashCommand answers a slash command in the HTTP response body. Slack
// shows any non-200 status as a failure, so every outcome is a 200.
func (h *SlackHandler) SlashCommand(c *gin.Context) {
	sc, err := slack.SlashCommandParse(c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid slash command payload"})
		return
	}

	msg, err := h.bot.HandleCommand(c.Request.Context(), conversation.Command{
		Name:      sc.Command,
		Text:      sc.Text,
		UserID:    sc.UserID,
		ChannelID: sc.ChannelID,
	})
	if err != nil {
		h.report(err, "command", sc.Command, "user", sc.UserID)
		msg = conversation.ErrorReply(err)
	}
	c.JSON(http.StatusOK, msg)
}

// Interaction handles a block_actions payload. The request is acknowledged
// at once; the click is handled afterwards and its reply goes to the
// payload's response_url.
func (h *SlackHandler) Interaction(c *gin.Context) {
	var callback slack.InteractionCallback
	if err := json.Unmarshal([]byte(c.PostForm("payload")), &callback); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid interaction payload"})
		return
	}
	if callback.Type != slack.InteractionTypeBlockActions || len(callback.ActionCallback.BlockActions) == 0 {
		h.logger.Debug("ignoring interaction", "type", callback.Type)
		c.Status(http.StatusOK)
		return
	}

	action := callback.ActionCallback.BlockActions[0]
	click := conversation.Click{
		ActionID: action.ActionID,
		Value:    action.Value,
		UserID:   callback.User.ID,
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), replyTimeout)
	h.replies.Add(1)
	go func() {
		defer h.replies.Done()
		defer cancel()
		h.reply(ctx, click, callback.ResponseURL)
	}()
	c.Status(http.StatusOK)
}

func (h *SlackHandler) reply(ctx context.Context, click conversation.Click, responseURL string) {
	msg, err := h.bot.HandleAction(ctx, click)
	if err != nil {
		h.report(err, "action", click.ActionID, "user", click.UserID)
		msg = conversation.ErrorReply(err)
	}
	if err := h.responder.Respond(ctx, responseURL, msg); err != nil {
		h.logger.Error("reply to interaction failed", "action", click.ActionID, "error", err)
	}
}

func (h *SlackHandler) report(err error, args ...any) {
	if conversation.IsUserError(err) {
		h.logger.Debug("rejected request", append(args, "reason", err)...)
		return
	}
	h.logger.Error("request failed", append(args, "error", err)...)
}
