package purchasefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "purchase:"

// RedisFeed uses Redis pub/sub, one channel per purchase session.
type RedisFeed struct {
	client *redis.Client
}

func NewRedisFeed(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client}
}

func channelName(purchaseSessionID string) string {
	return channelPrefix + purchaseSessionID
}

func (f *RedisFeed) Publish(ctx context.Context, u Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, channelName(u.PurchaseSessionID), payload).Err(); err != nil {
		return fmt.Errorf("publish purchase update: %w", err)
	}
	return nil
}

func (f *RedisFeed) Wait(ctx context.Context, purchaseSessionID, status string) (Update, error) {
	ps := f.client.Subscribe(ctx, channelName(purchaseSessionID))
	defer ps.Close()

	// Receive blocks until the subscription is confirmed.
	if _, err := ps.Receive(ctx); err != nil {
		return Update{}, fmt.Errorf("subscribe purchase updates: %w", err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return Update{}, ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return Update{}, errors.New("purchase update subscription closed")
			}
			var u Update
			if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
				log.Warnf("[PurchaseFeed] Ignoring malformed update on %s: %v", msg.Channel, err)
				continue
			}
			if matches(u, status) {
				return u, nil
			}
		}
	}
}
