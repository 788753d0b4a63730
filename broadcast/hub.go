// Package broadcast fans out task progress updates to any number of
// subscribers keyed by task ID. Production and consumption are fully
// decoupled: a slow or disconnected subscriber never blocks the process
// supervisor, it only misses intermediate values (progress is
// idempotently represented by its latest value).
package broadcast

import (
	"sync"
)

// ProgressStreamLost is the sentinel progress value signalling that the
// encoder's progress stream terminated abnormally mid-run, before the
// exit code is known. Subscribers may fast-path to a failure UI on it.
const ProgressStreamLost = -1

// Update is one progress/status datum for a task.
type Update struct {
	TaskID   string `json:"-"`
	Progress int    `json:"progress"`
	Status   string `json:"status,omitempty"`
	Terminal bool   `json:"-"`
}

// Subscription is one observer's handle on a task's update stream. C is
// closed after a terminal update is delivered, or on Close.
type Subscription struct {
	C chan Update

	hub    *Hub
	taskID string
	closed bool
}

// Close detaches the subscription. Safe to call more than once and
// after the hub has already closed the stream.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub routes updates to subscribers per task ID.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe attaches a new observer to the given task. The caller is
// responsible for delivering the task's current state as the first
// message (the hub carries no history); every subsequent store write
// arrives on C.
func (h *Hub) Subscribe(taskID string) *Subscription {
	sub := &Subscription{
		// Buffered so a burst of writes does not immediately drop
		// values for a consumer that is only momentarily behind.
		C:      make(chan Update, 16),
		hub:    h,
		taskID: taskID,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[taskID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[taskID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish delivers an update to all current subscribers of its task.
// Sends never block: a subscriber whose buffer is full loses this value
// and catches up on the next one. A terminal update is the exception:
// it evicts the oldest buffered value if needed so the final frame
// always lands, then closes every subscription and drops the key.
func (h *Hub) Publish(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[u.TaskID] {
		select {
		case sub.C <- u:
		default:
			if !u.Terminal {
				continue
			}
			// Only Publish fills the buffer and the hub lock serializes
			// publishers, so after one eviction the send succeeds.
			select {
			case <-sub.C:
			default:
			}
			select {
			case sub.C <- u:
			default:
			}
		}
	}

	if u.Terminal {
		for sub := range h.subs[u.TaskID] {
			sub.closed = true
			close(sub.C)
		}
		delete(h.subs, u.TaskID)
	}
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true

	if set, ok := h.subs[sub.taskID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.taskID)
		}
	}
	close(sub.C)
}
