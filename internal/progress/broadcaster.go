package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/scour-research/scour/internal/research"
)

// Broadcaster publishes progress updates to a Redis channel per run, giving
// observers a push feed on top of the polling contract.
type Broadcaster struct {
	client *redis.Client
	logger *log.Logger
}

// NewBroadcaster creates a Broadcaster instance.
func NewBroadcaster(client *redis.Client) *Broadcaster {
	return &Broadcaster{
		client: client,
		logger: log.New(log.Writer(), "[PROGRESS] ", log.LstdFlags),
	}
}

// ChannelFor names the Redis channel carrying one run's updates.
func ChannelFor(runID string) string {
	return fmt.Sprintf("scour:run:%s", runID)
}

// Publish broadcasts one update. A failure here never fails the pipeline;
// the run record remains the source of truth.
func (b *Broadcaster) Publish(ctx context.Context, update research.ProgressUpdate) error {
	raw, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	if err := b.client.Publish(ctx, ChannelFor(update.RunID), raw).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Subscribe delivers a run's updates until ctx is done. The returned cancel
// function closes the subscription.
func (b *Broadcaster) Subscribe(ctx context.Context, runID string) (<-chan research.ProgressUpdate, func()) {
	sub := b.client.Subscribe(ctx, ChannelFor(runID))
	out := make(chan research.ProgressUpdate, 16)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var update research.ProgressUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				b.logger.Printf("bad progress payload on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() { _ = sub.Close() }
}
