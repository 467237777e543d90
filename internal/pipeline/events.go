package pipeline

import (
	"sync"
	"time"

	"github.com/jonathan/resume-orchestrator/internal/types"
)

// EventType classifies a ProgressEvent.
type EventType string

// Progress event types.
const (
	EventStageStarted   EventType = "stage_started"
	EventStageCompleted EventType = "stage_completed"
	EventStageFailed    EventType = "stage_failed"
	EventStatus         EventType = "status"
)

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	RunID    string          `json:"runId"`
	Type     EventType       `json:"type"`
	Stage    types.Stage     `json:"stage,omitempty"`
	Provider string          `json:"provider,omitempty"`
	Status   types.RunStatus `json:"status,omitempty"`
	Message  string          `json:"message,omitempty"`
	Revision int             `json:"revision,omitempty"`
	Content  any             `json:"content,omitempty"`
	Time     time.Time       `json:"time"`
}

// Final reports whether the event ends the current execution of a run.
func (e ProgressEvent) Final() bool {
	return e.Type == EventStatus && (e.Status.Terminal() || e.Status == types.StatusNeedsReview)
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// subscriberBuffer is the per-subscriber queue length. Events beyond it are dropped.
const subscriberBuffer = 64

// Broadcaster fans progress events out to per-run subscribers.
type Broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]chan ProgressEvent
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[int]chan ProgressEvent)}
}

// Subscribe returns a channel of events for runID and a function that
// unsubscribes and closes it.
func (b *Broadcaster) Subscribe(runID string) (<-chan ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan ProgressEvent, subscriberBuffer)
	if b.subs[runID] == nil {
		b.subs[runID] = make(map[int]chan ProgressEvent)
	}
	b.subs[runID][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[runID], id)
			if len(b.subs[runID]) == 0 {
				delete(b.subs, runID)
			}
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber of its run without blocking.
func (b *Broadcaster) Publish(ev ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[ev.RunID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of subscribers for runID.
func (b *Broadcaster) Subscribers(runID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[runID])
}
