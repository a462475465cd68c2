package fanout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tripdesk/tripdesk-server/internal/proto"
	"github.com/tripdesk/tripdesk-server/internal/store"
	"github.com/tripdesk/tripdesk-server/internal/utils"
)

const channel = "tripdesk:rooms"

// Deliverer receives room events published by other processes.
type Deliverer interface {
	DeliverRemote(room string, conv *store.Conversation, clientTempID string)
}

type envelope struct {
	Origin       string                    `json:"origin"`
	Room         string                    `json:"room"`
	Conversation proto.ConversationPayload `json:"conversation"`
	ClientTempID string                    `json:"clientTempId,omitempty"`
}

// RedisBridge relays room events over a Redis pub/sub channel so that
// clients connected to different processes see the same broadcasts.
type RedisBridge struct {
	client *redis.Client
	origin string
	log    zerolog.Logger
}

// NewRedisBridge connects to the Redis instance named by url and
// verifies the connection with a ping.
func NewRedisBridge(ctx context.Context, url string, logger *zerolog.Logger) (*RedisBridge, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RedisBridge{
		client: client,
		origin: utils.NewID(),
		log:    *logger,
	}, nil
}

// Publish relays a new-message event to the other processes. The
// origin tag keeps the subscriber from re-delivering our own events.
func (b *RedisBridge) Publish(ctx context.Context, room string, conv *store.Conversation, clientTempID string) error {
	payload, err := json.Marshal(envelope{
		Origin:       b.origin,
		Room:         room,
		Conversation: proto.FromConversation(conv),
		ClientTempID: clientTempID,
	})
	if err != nil {
		return fmt.Errorf("marshal fanout event: %w", err)
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish fanout event: %w", err)
	}
	return nil
}

// Run subscribes to the room channel and forwards foreign events to
// the deliverer until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context, d Deliverer) {
	sub := b.client.Subscribe(ctx, channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn().Err(err).Msg("malformed fanout event")
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			d.DeliverRemote(env.Room, proto.ToConversation(env.Conversation), env.ClientTempID)
		}
	}
}

// Close releases the Redis connection.
func (b *RedisBridge) Close() error {
	return b.client.Close()
}
