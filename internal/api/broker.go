package api

import (
	"sync"
)

// JobEvent is one progress or completion event of an async pricing job.
type JobEvent struct {
	Type string
	Data map[string]any
}

// EventBroker fans job events out to stream subscribers.
type EventBroker interface {
	Subscribe(jobID string) chan JobEvent
	Unsubscribe(jobID string, ch chan JobEvent)
	Publish(jobID string, evt JobEvent)
}

// Broker is the in-process EventBroker used when no REDIS_URL is set.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan JobEvent]struct{} // jobId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan JobEvent]struct{}{}}
}

func (b *Broker) Subscribe(jobID string) chan JobEvent {
	ch := make(chan JobEvent, 8)
	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = map[chan JobEvent]struct{}{}
	}
	b.subs[jobID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(jobID string, ch chan JobEvent) {
	b.mu.Lock()
	if m := b.subs[jobID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, jobID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(jobID string, evt JobEvent) {
	b.mu.Lock()
	m := b.subs[jobID]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
