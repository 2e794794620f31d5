package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// CatalogPubSub tells other instances that routes or buses were added so
// they can reload their in-memory catalog.
type CatalogPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewCatalogPubSub(rdb *redis.Client) *CatalogPubSub {
	return &CatalogPubSub{
		rdb:     rdb,
		channel: ChannelCatalogChanged(),
	}
}

type catalogChangedMsg struct {
	Type   string `json:"type"`
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	TsUnix int64  `json:"ts_unix"`
}

// PublishCatalogChanged announces a new catalog entry. kind is "route" or "bus".
func (p *CatalogPubSub) PublishCatalogChanged(ctx context.Context, kind, id string) error {
	if p == nil {
		return nil
	}

	msg := catalogChangedMsg{
		Type:   "catalog_changed",
		Kind:   kind,
		ID:     id,
		TsUnix: time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

func (p *CatalogPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, kind, id string)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev catalogChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.ID != "" {
				handler(ctx, ev.Kind, ev.ID)
			}
		}
	}
}
