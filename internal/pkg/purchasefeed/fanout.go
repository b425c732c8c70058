package purchasefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
)

// Fanout publishes to every feed and waits on the first one.
type Fanout struct {
	feeds []Feed
}

func NewFanout(feeds ...Feed) *Fanout {
	return &Fanout{feeds: feeds}
}

func (f *Fanout) Publish(ctx context.Context, u Update) error {
	var errs []error
	for _, feed := range f.feeds {
		if err := feed.Publish(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Wait(ctx context.Context, purchaseSessionID, status string) (Update, error) {
	if len(f.feeds) == 0 {
		<-ctx.Done()
		return Update{}, ctx.Err()
	}
	return f.feeds[0].Wait(ctx, purchaseSessionID, status)
}

// Kind selects the feed backends from configuration.
type Kind string

const (
	KindRedis     Kind = "redis"
	KindFirestore Kind = "firestore"
	KindBoth      Kind = "both"
)

// ParseKind accepts redis, firestore or both.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", KindRedis:
		return KindRedis, nil
	case KindFirestore, KindBoth:
		return k, nil
	default:
		return "", fmt.Errorf("unknown purchase feed %q", s)
	}
}

// New builds the configured feed. The Redis feed is preferred for waiting
// when both are enabled.
func New(kind Kind, redisFeed, firestoreFeed Feed) Feed {
	switch kind {
	case KindFirestore:
		if firestoreFeed != nil {
			return firestoreFeed
		}
		log.Warnf("[PurchaseFeed] Firestore feed requested but not configured, falling back to redis")
		return redisFeed
	case KindBoth:
		if firestoreFeed == nil {
			return redisFeed
		}
		return NewFanout(redisFeed, firestoreFeed)
	default:
		return redisFeed
	}
}
