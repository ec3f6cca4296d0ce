package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisFeed fans insert events out over Redis pub/sub, one channel per
// session. Writers must call Publish after each insert.
type RedisFeed struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisFeed(redisURL string, log *zap.Logger) (*RedisFeed, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisFeed{client: client, log: log}, nil
}

func SessionChannel(sessionID uuid.UUID) string {
	return "chat:session:" + sessionID.String()
}

func (f *RedisFeed) Publish(ctx context.Context, event InsertEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, SessionChannel(event.SessionID), payload).Err()
}

func (f *RedisFeed) Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan InsertEvent, error) {
	pubsub := f.client.Subscribe(ctx, SessionChannel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", SessionChannel(sessionID), err)
	}

	events := make(chan InsertEvent, 16)
	go func() {
		defer close(events)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				event, err := DecodeEvent([]byte(msg.Payload))
				if err != nil {
					f.log.Warn("realtime dropped malformed message", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				if event.SessionID != sessionID {
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

func (f *RedisFeed) Close() error {
	return f.client.Close()
}
