// Package history fetches conversation history and rosters over REST and
// applies them to the store.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/chatsync-go/internal/metrics"
	"github.com/raphaelgruber/chatsync-go/internal/models"
	"github.com/raphaelgruber/chatsync-go/internal/store"
)

// Source is the REST surface the loader reads from.
type Source interface {
	DirectMessages(ctx context.Context, contactID string) ([]*models.DirectMessage, error)
	ChannelMessages(ctx context.Context, channelID string) ([]*models.ChannelMessage, error)
	DMContacts(ctx context.Context) ([]*models.Contact, error)
	UserChannels(ctx context.Context) ([]*models.Channel, error)
	AiSessions(ctx context.Context) ([]*models.AiSession, error)
}

// Loader applies fetched history to the store. A fetch that completes after
// the user switched conversations is discarded.
type Loader struct {
	src     Source
	store   *store.Store
	metrics *metrics.Collector
	logger  *slog.Logger
}

// New creates a loader.
func New(src Source, st *store.Store, m *metrics.Collector, logger *slog.Logger) *Loader {
	if src == nil || st == nil {
		panic("history: nil source or store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{src: src, store: st, metrics: m, logger: logger}
}

// Load fetches the history of target, which must be the active conversation,
// and replaces the message list with it. It reports whether the result was
// applied; false with a nil error means the conversation changed meanwhile
// or target has no server-side history.
func (l *Loader) Load(ctx context.Context, target models.Target) (bool, error) {
	// AI turns live on the session itself.
	if target == nil || target.Kind() == models.KindAI {
		return false, nil
	}
	tok, ok := l.store.BeginHistoryLoad(target)
	if !ok {
		return false, nil
	}

	start := time.Now()
	list, err := l.fetch(ctx, target)
	l.metrics.RecordTiming(metrics.OpHistoryLoad, time.Since(start), err)
	if err != nil {
		l.logger.Warn("history load failed", "target", target.TargetID(), "kind", target.Kind(), "error", err)
		return false, err
	}
	applied := l.store.ApplyHistory(tok, list)
	if !applied {
		l.logger.Debug("discarded stale history", "target", target.TargetID())
	}
	return applied, nil
}

func (l *Loader) fetch(ctx context.Context, target models.Target) ([]models.Message, error) {
	switch target.Kind() {
	case models.KindContact:
		msgs, err := l.src.DirectMessages(ctx, target.TargetID())
		if err != nil {
			return nil, err
		}
		return toMessages(msgs), nil
	case models.KindChannel:
		msgs, err := l.src.ChannelMessages(ctx, target.TargetID())
		if err != nil {
			return nil, err
		}
		return toMessages(msgs), nil
	default:
		return nil, fmt.Errorf("load history: unknown target kind %q", target.Kind())
	}
}

func toMessages[M models.Message](list []M) []models.Message {
	out := make([]models.Message, 0, len(list))
	for _, m := range list {
		out = append(out, m)
	}
	return out
}

// LoadRoster fetches contacts, channels and AI sessions in parallel and
// replaces the rosters. Nothing is applied unless all three succeed.
func (l *Loader) LoadRoster(ctx context.Context) error {
	var (
		contacts []*models.Contact
		channels []*models.Channel
		sessions []*models.AiSession
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		contacts, err = l.src.DMContacts(gctx)
		return err
	})
	g.Go(func() (err error) {
		channels, err = l.src.UserChannels(gctx)
		return err
	})
	g.Go(func() (err error) {
		sessions, err = l.src.AiSessions(gctx)
		return err
	})
	err := g.Wait()
	l.metrics.RecordTiming(metrics.OpRosterLoad, time.Since(start), err)
	if err != nil {
		l.logger.Warn("roster load failed", "error", err)
		return fmt.Errorf("load roster: %w", err)
	}

	l.store.SetContacts(contacts)
	l.store.SetChannels(channels)
	l.store.SetAiSessions(sessions)
	l.logger.Debug("roster loaded", "contacts", len(contacts), "channels", len(channels), "sessions", len(sessions))
	return nil
}
