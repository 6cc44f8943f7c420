// Package conversation drives lunchbot's slash commands and button clicks.
//
// The Sequencer holds no conversation state of its own. Each request
// re-derives where a user is from stored records: a participant's step for
// the suggest flow, the existence of a staged restaurant for the add flow.
package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"lunchbot/models"
	"lunchbot/platform"

	"github.com/slack-go/slack"
)

// Catalog is the restaurant store.
type Catalog interface {
	List(ctx context.Context) ([]models.Restaurant, error)
	Delete(ctx context.Context, id uint) error
	Tags(ctx context.Context) ([]string, error)
	Stage(ctx context.Context, p *models.PendingRestaurant) error
	Pending(ctx context.Context, id string) (*models.PendingRestaurant, error)
	Commit(ctx context.Context, pendingID string) (*models.Restaurant, error)
	Discard(ctx context.Context, pendingID string) error
}

// FilterStore holds per-user preferences.
type FilterStore interface {
	Get(ctx context.Context, userID string) (models.Filter, error)
	SetTimeLimit(ctx context.Context, userID string, minutes int) error
	SetPriceLimit(ctx context.Context, userID string, price int) error
	ToggleExcludedTag(ctx context.Context, userID, tag string) (models.Filter, error)
	Clear(ctx context.Context, userID string) error
}

// SessionTracker groups invited users into lunch sessions.
type SessionTracker interface {
	Create(ctx context.Context, initiatorID, channelID string, userIDs []string, step models.ConversationState) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	ActiveFor(ctx context.Context, userIDs []string) ([]models.Participant, error)
	InitiatedBy(ctx context.Context, userID string) ([]models.Session, error)
	Advance(ctx context.Context, sessionID, userID string, step models.ConversationState) error
	MarkFinished(ctx context.Context, sessionID, userID string) (bool, error)
	Leave(ctx context.Context, sessionID, userID string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// Suggester computes the restaurants a group can agree on.
type Suggester interface {
	Suggest(ctx context.Context, userIDs []string) (models.Criteria, []models.Restaurant, error)
}

// Platform is the chat platform seen from the conversation.
type Platform interface {
	LookupUser(ctx context.Context, userID string) error
	DirectMessage(ctx context.Context, userID, text string, blocks []slack.Block) error
	PostMessage(ctx context.Context, channelID, text string, blocks []slack.Block) error
}

type Options struct {
	// DispatchTimeout bounds one background batch of direct messages.
	DispatchTimeout time.Duration
	// DispatchConcurrency caps direct messages in flight per batch.
	DispatchConcurrency int
	Logger              *slog.Logger
}

type Sequencer struct {
	catalog  Catalog
	filters  FilterStore
	sessions SessionTracker
	engine   Suggester
	platform Platform
	opts     Options
	logger   *slog.Logger

	tasks sync.WaitGroup
}

func New(catalog Catalog, filters FilterStore, sessions SessionTracker, engine Suggester, p Platform, opts Options) *Sequencer {
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 30 * time.Second
	}
	if opts.DispatchConcurrency <= 0 {
		opts.DispatchConcurrency = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		catalog:  catalog,
		filters:  filters,
		sessions: sessions,
		engine:   engine,
		platform: p,
		opts:     opts,
		logger:   logger,
	}
}

// Wait blocks until every background dispatch has finished.
func (s *Sequencer) Wait() {
	s.tasks.Wait()
}

// background runs fn outside the request. The request context's values are
// kept but its cancellation is not, since Slack has been answered by then.
func (s *Sequencer) background(parent context.Context, task string, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.opts.DispatchTimeout)
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		defer cancel()
		start := time.Now()
		fn(ctx)
		s.logger.Debug("background task finished", "task", task, "elapsed", time.Since(start))
	}()
}

func (s *Sequencer) broadcast(ctx context.Context, msgs []platform.Outgoing) []platform.Delivery {
	return platform.Broadcast(ctx, s.platform, msgs, s.opts.DispatchConcurrency, s.logger)
}
