package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"lunchbot/conversation"
	"lunchbot/handlers"
	"lunchbot/models"
	"lunchbot/routes"
	"lunchbot/slackmsg"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
)

type fakeBot struct {
	commands []conversation.Command
	clicks   []conversation.Click
	err      error
}

func (b *fakeBot) HandleCommand(ctx context.Context, cmd conversation.Command) (slack.Msg, error) {
	b.commands = append(b.commands, cmd)
	if b.err != nil {
		return slack.Msg{}, b.err
	}
	return slackmsg.Ephemeral("ok " + cmd.Name), nil
}

func (b *fakeBot) HandleAction(ctx context.Context, click conversation.Click) (slack.Msg, error) {
	b.clicks = append(b.clicks, click)
	if b.err != nil {
		return slack.Msg{}, b.err
	}
	return slackmsg.Replace("clicked " + click.ActionID), nil
}

type fakeResponder struct {
	url     string
	msg     slack.Msg
	release chan struct{}
}

func (r *fakeResponder) Respond(ctx context.Context, responseURL string, msg slack.Msg) error {
	if r.release != nil {
		<-r.release
	}
	r.url = responseURL
	r.msg = msg
	return nil
}

type fakeMatcher struct {
	got models.Criteria
}

func (m *fakeMatcher) Match(ctx context.Context, crit models.Criteria) ([]models.Restaurant, error) {
	m.got = crit
	return []models.Restaurant{{ID: 1, Name: "Soba Ichi"}}, nil
}

func setupRouter(bot *fakeBot, responder *fakeResponder, matcher *fakeMatcher) *gin.Engine {
	r, _ := setupRouterWithHandler(bot, responder, matcher)
	return r
}

func setupRouterWithHandler(bot *fakeBot, responder *fakeResponder, matcher *fakeMatcher) (*gin.Engine, *handlers.SlackHandler) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := gin.New()
	slackHandler := handlers.NewSlackHandler(bot, responder, logger)
	routes.SetupRoutes(r, slackHandler, handlers.NewAPIHandler(matcher, logger), nil)
	return r, slackHandler
}

func postForm(r http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSlashCommandRepliesInBody(t *testing.T) {
	bot := &fakeBot{}
	r := setupRouter(bot, &fakeResponder{}, &fakeMatcher{})

	w := postForm(r, "/slack/commands", url.Values{
		"command":    {"/suggest"},
		"text":       {"<@UA> <@UB>"},
		"user_id":    {"UORG"},
		"channel_id": {"C1"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(bot.commands) != 1 {
		t.Fatalf("expected one command, got %d", len(bot.commands))
	}
	got := bot.commands[0]
	if got.Name != "/suggest" || got.Text != "<@UA> <@UB>" || got.UserID != "UORG" || got.ChannelID != "C1" {
		t.Fatalf("unexpected command: %+v", got)
	}

	var msg slack.Msg
	if err := json.Unmarshal(w.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if msg.Text != "ok /suggest" || msg.ResponseType != slack.ResponseTypeEphemeral {
		t.Fatalf("unexpected reply: %+v", msg)
	}
}

func TestSlashCommandErrorStillAnswers200(t *testing.T) {
	bot := &fakeBot{err: errors.New("database is locked")}
	r := setupRouter(bot, &fakeResponder{}, &fakeMatcher{})

	w := postForm(r, "/slack/commands", url.Values{"command": {"/list-restaurants"}, "user_id": {"U1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "locked") {
		t.Fatalf("internal error leaked: %s", w.Body.String())
	}
}

func TestInteractionAcknowledgesBeforeReplying(t *testing.T) {
	bot := &fakeBot{}
	// the reply blocks until released, so the ack must not wait for it
	responder := &fakeResponder{release: make(chan struct{})}
	r, slackHandler := setupRouterWithHandler(bot, responder, &fakeMatcher{})

	payload := `{
		"type": "block_actions",
		"user": {"id": "UA"},
		"response_url": "https://hooks.slack.test/actions/1",
		"actions": [{"block_id": "time-limit-0", "action_id": "answer-time-limit-20", "value": "session-1", "type": "button"}]
	}`
	w := postForm(r, "/slack/actions", url.Values{"payload": {payload}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("expected empty acknowledgement, got %q", w.Body.String())
	}

	close(responder.release)
	slackHandler.Wait()

	if len(bot.clicks) != 1 {
		t.Fatalf("expected one click, got %d", len(bot.clicks))
	}
	click := bot.clicks[0]
	if click.ActionID != "answer-time-limit-20" || click.Value != "session-1" || click.UserID != "UA" {
		t.Fatalf("unexpected click: %+v", click)
	}
	if responder.url != "https://hooks.slack.test/actions/1" || !responder.msg.ReplaceOriginal {
		t.Fatalf("reply not sent to response_url: %q %+v", responder.url, responder.msg)
	}
}

func TestInteractionErrorRepliesGenerically(t *testing.T) {
	bot := &fakeBot{err: errors.New("database is locked")}
	responder := &fakeResponder{}
	r, slackHandler := setupRouterWithHandler(bot, responder, &fakeMatcher{})

	payload := `{"type": "block_actions", "user": {"id": "UA"}, "response_url": "https://hooks.slack.test/actions/2",
		"actions": [{"block_id": "b", "action_id": "finish-tag-exclude", "value": "s", "type": "button"}]}`
	w := postForm(r, "/slack/actions", url.Values{"payload": {payload}})
	slackHandler.Wait()
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(responder.msg.Text, "locked") || responder.msg.Text == "" {
		t.Fatalf("expected a generic error reply, got %q", responder.msg.Text)
	}
}

func TestInteractionRejectsBadPayload(t *testing.T) {
	bot := &fakeBot{}
	r := setupRouter(bot, &fakeResponder{}, &fakeMatcher{})

	w := postForm(r, "/slack/actions", url.Values{"payload": {"{not json"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(bot.clicks) != 0 {
		t.Fatalf("bad payload reached the bot")
	}
}

func TestListRestaurantsParsesFilters(t *testing.T) {
	matcher := &fakeMatcher{}
	r := setupRouter(&fakeBot{}, &fakeResponder{}, matcher)

	req := httptest.NewRequest(http.MethodGet, "/api/restaurants?max_duration=20&max_price=700&exclude=vegan,%20meat", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	crit := matcher.got
	if crit.TimeLimit == nil || *crit.TimeLimit != 20 || crit.PriceLimit == nil || *crit.PriceLimit != 700 {
		t.Fatalf("unexpected limits: %+v", crit)
	}
	if len(crit.ExcludedTags) != 2 || crit.ExcludedTags[1] != "meat" {
		t.Fatalf("unexpected exclusions: %v", crit.ExcludedTags)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Count != 1 {
		t.Fatalf("unexpected body %s (%v)", w.Body.String(), err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/restaurants?max_price=cheap", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad max_price, got %d", w.Code)
	}
}

func TestStateMachineInfo(t *testing.T) {
	r := setupRouter(&fakeBot{}, &fakeResponder{}, &fakeMatcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/state-machine", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"finish-tag-exclude"`) {
		t.Fatalf("transition table missing from %s", w.Body.String())
	}
}
