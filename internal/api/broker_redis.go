package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so multiple pricing
// workers can serve streams for jobs running on their peers.
type RedisBroker struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[chan JobEvent]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBroker{
		rdb:  redis.NewClient(opt),
		subs: map[chan JobEvent]*redis.PubSub{},
	}, nil
}

func (b *RedisBroker) Subscribe(jobID string) chan JobEvent {
	ch := make(chan JobEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(jobID))
	// initial consume to ensure the subscription is live
	_, _ = ps.Receive(ctx)

	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()

	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt JobEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

// Unsubscribe closes the underlying pubsub; the reader goroutine drains out
// and closes ch, releasing any blocked stream handler.
func (b *RedisBroker) Unsubscribe(jobID string, ch chan JobEvent) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(jobID string, evt JobEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.chanName(jobID), data).Err()
}

func (b *RedisBroker) chanName(jobID string) string { return "job:" + jobID }
