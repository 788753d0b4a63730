package task

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"mediaforge/config"
	"mediaforge/hwaccel"
	"mediaforge/media"

	"github.com/lithammer/shortuuid/v4"
)

// Runner supervises one external encoder process per task. Run blocks
// until the task reaches a terminal state, which the runner records in
// the store itself; the returned error is informational.
type Runner interface {
	Run(ctx context.Context, t Task) error
	CheckResources() error
}

// retryInterval re-triggers dispatch while admission is deferred by the
// resource throttle and no completion arrives to wake the scheduler.
const retryInterval = 15 * time.Second

// Manager accepts new jobs, keeps one FIFO queue per owner and admits
// tasks to the runner under the global concurrency cap, round-robin
// across owners so no single user can starve the rest.
type Manager struct {
	cfg    *config.Config
	store  *Store
	runner Runner
	caps   hwaccel.Snapshot

	mu       sync.Mutex
	queues   map[string][]string // owner -> queued task IDs, FIFO
	owners   []string            // round-robin ring, first-seen order
	next     int                 // ring index of the next owner to service
	running  map[string]context.CancelFunc
	active   int
	taskWg   sync.WaitGroup
	wakeupCh chan struct{}
}

func NewManager(cfg *config.Config, store *Store, runner Runner, caps hwaccel.Snapshot) *Manager {
	return &Manager{
		cfg:      cfg,
		store:    store,
		runner:   runner,
		caps:     caps,
		queues:   make(map[string][]string),
		running:  make(map[string]context.CancelFunc),
		wakeupCh: make(chan struct{}, 1),
	}
}

// Start launches the scheduler loop. Admission decisions are serialized
// in this single goroutine.
func (m *Manager) Start(ctx context.Context) {
	log.Printf("Task manager started. Concurrency limit: %d", m.cfg.MaxConcurrency)
	go m.scheduleLoop(ctx)
}

// Wait blocks until all running tasks have finished. Used during
// shutdown after the parent context is cancelled.
func (m *Manager) Wait() {
	m.taskWg.Wait()
}

// Submit validates the spec against its source, derives the command
// argv and enqueues a new pending task on the owner's queue. extraArgs
// (already split and sanitized by the caller) are appended verbatim to
// the derived argv.
func (m *Manager) Submit(owner string, spec media.ProcessingSpec, src media.SourceInfo, extraArgs []string) (Task, error) {
	if err := spec.Validate(src); err != nil {
		return Task{}, err
	}

	args, outputName, err := media.Build(spec, src, m.caps)
	if err != nil {
		return Task{}, err
	}
	args = append(args, extraArgs...)

	now := time.Now()
	t := Task{
		ID:             fmt.Sprintf("%s_%d", shortuuid.New(), now.Unix()),
		Owner:          owner,
		Spec:           spec,
		Source:         src,
		Args:           args,
		SourceFilename: src.Filename,
		CommandPreview: media.Preview(m.cfg.FFBin, args, outputName),
		OutputName:     outputName,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	m.store.Put(t)

	m.mu.Lock()
	if _, ok := m.queues[owner]; !ok {
		m.owners = append(m.owners, owner)
	}
	m.queues[owner] = append(m.queues[owner], t.ID)
	m.mu.Unlock()

	log.Printf("Task %s submitted by %s (%s)", t.ID, owner, src.Filename)
	m.wake()
	return t, nil
}

// Cancel stops a task. A queued task is removed from its queue without
// ever starting a process; a running task has its process group
// terminated by the runner. Terminal tasks cannot be cancelled.
func (m *Manager) Cancel(id string) error {
	t, ok := m.store.Get(id)
	if !ok {
		return ErrNotFound
	}

	m.mu.Lock()
	if cancel, isRunning := m.running[id]; isRunning {
		m.mu.Unlock()
		log.Printf("Cancellation signal sent to running task %s", id)
		cancel()
		return nil
	}
	dequeued := m.removeQueuedLocked(t.Owner, id)
	m.mu.Unlock()

	if dequeued {
		log.Printf("Task %s cancelled while queued", id)
		return m.store.Fail(id, CancelledDetail+" while queued")
	}
	return fmt.Errorf("cannot cancel task in state: %s", t.Status)
}

func (m *Manager) scheduleLoop(ctx context.Context) {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Scheduler shutting down.")
			return
		case <-m.wakeupCh:
		case <-ticker.C:
		}
		m.dispatch(ctx)
	}
}

// dispatch admits queued tasks until the cap is reached, the queues are
// drained, or the resource throttle defers admission.
func (m *Manager) dispatch(ctx context.Context) {
	for {
		// Cheap checks first: the resource probe blocks for a second
		// sampling CPU load, so it must not run on wakeups with nothing
		// to admit.
		m.mu.Lock()
		if m.active >= m.cfg.MaxConcurrency || !m.hasQueuedLocked() {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		if m.cfg.ThrottleEnable {
			if err := m.runner.CheckResources(); err != nil {
				log.Printf("Deferring task admission: %v", err)
				return
			}
		}

		m.mu.Lock()
		if m.active >= m.cfg.MaxConcurrency {
			m.mu.Unlock()
			return
		}
		id, ok := m.popNextLocked()
		if !ok {
			m.mu.Unlock()
			return
		}

		taskCtx, cancel := m.taskContext(ctx)
		m.running[id] = cancel
		m.active++
		m.mu.Unlock()

		if err := m.store.SetProcessing(id); err != nil {
			// Task was cancelled between queueing and admission.
			log.Printf("Skipping admission of task %s: %v", id, err)
			m.release(id, cancel)
			continue
		}

		t, _ := m.store.Get(id)
		m.taskWg.Add(1)
		go func() {
			defer m.taskWg.Done()
			defer m.release(id, cancel)
			if err := m.runner.Run(taskCtx, t); err != nil {
				log.Printf("Task %s concluded with error: %v", id, err)
			}
		}()
	}
}

// taskContext derives the per-run context. The timeout is an optional
// ceiling: a non-positive value means run without one.
func (m *Manager) taskContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.TaskTimeout > 0 {
		return context.WithTimeout(ctx, m.cfg.TaskTimeout)
	}
	return context.WithCancel(ctx)
}

func (m *Manager) release(id string, cancel context.CancelFunc) {
	cancel()
	m.mu.Lock()
	delete(m.running, id)
	m.active--
	m.mu.Unlock()
	m.wake()
}

// popNextLocked picks the next task round-robin: starting with the
// owner after the one serviced last, take the head of the first
// non-empty queue.
func (m *Manager) popNextLocked() (string, bool) {
	n := len(m.owners)
	for i := 0; i < n; i++ {
		idx := (m.next + i) % n
		owner := m.owners[idx]
		queue := m.queues[owner]
		if len(queue) == 0 {
			continue
		}

		id := queue[0]
		m.queues[owner] = queue[1:]
		m.next = (idx + 1) % n
		return id, true
	}
	return "", false
}

func (m *Manager) hasQueuedLocked() bool {
	for _, queue := range m.queues {
		if len(queue) > 0 {
			return true
		}
	}
	return false
}

func (m *Manager) removeQueuedLocked(owner, id string) bool {
	queue := m.queues[owner]
	for i, queued := range queue {
		if queued == id {
			m.queues[owner] = append(queue[:i], queue[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Manager) wake() {
	select {
	case m.wakeupCh <- struct{}{}:
	default:
	}
}
