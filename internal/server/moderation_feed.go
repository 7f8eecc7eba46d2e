package server

import (
	"context"
	"sync"
	"time"
)

const (
	EventStoryQueued = "story-queued"
	EventNoteQueued  = "note-queued"
	eventHeartbeat   = "heartbeat"
)

// ModerationEvent tells moderators that the review queue grew. It carries no
// content and no identifiers.
type ModerationEvent struct {
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ModerationFeed fans queue events out to connected moderator streams.
// Slow subscribers drop events rather than block publishers.
type ModerationFeed struct {
	mu          sync.RWMutex
	subscribers map[int64]*feedSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type feedSubscriber struct {
	id     int64
	stream chan ModerationEvent
}

func NewModerationFeed() *ModerationFeed {
	return &ModerationFeed{
		subscribers: make(map[int64]*feedSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

// Subscribe registers a stream that lives until ctx ends or cleanup is called.
func (f *ModerationFeed) Subscribe(ctx context.Context) (<-chan ModerationEvent, func()) {
	subscriber := &feedSubscriber{stream: make(chan ModerationEvent, f.bufferSize)}
	f.mu.Lock()
	f.nextID++
	subscriber.id = f.nextID
	f.subscribers[subscriber.id] = subscriber
	f.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subscribers, subscriber.id)
			f.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (f *ModerationFeed) Publish(event ModerationEvent) {
	if event.Kind == "" {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = f.clock().UTC()
	}
	f.mu.RLock()
	copies := make([]*feedSubscriber, 0, len(f.subscribers))
	for _, subscriber := range f.subscribers {
		copies = append(copies, subscriber)
	}
	f.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
}

// SubscriberCount reports how many moderator streams are connected.
func (f *ModerationFeed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}
