package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Manager runs the queue together with the periodic purchase reconciliation.
type Manager struct {
	queue             *Queue
	reconcileInterval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager wraps queue; a reconcile job is enqueued every reconcileInterval,
// 15 minutes when zero.
func NewManager(queue *Queue, reconcileInterval time.Duration) *Manager {
	if reconcileInterval <= 0 {
		reconcileInterval = 15 * time.Minute
	}
	return &Manager{queue: queue, reconcileInterval: reconcileInterval}
}

func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the workers and the reconcile ticker. A stopped manager can be
// started again.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	m.queue.Start()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.reconcileLoop(ctx, m.done)

	log.Infof("[JobQueue Manager] Started, reconciling every %s", m.reconcileInterval)
}

// Stop halts the ticker first so no job is enqueued into a stopped queue.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel == nil {
		return
	}

	m.cancel()
	<-m.done
	m.cancel = nil
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped")
}

func (m *Manager) reconcileLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.TriggerReconcile(); err != nil {
				log.Errorf("[JobQueue Manager] Enqueue reconcile: %v", err)
			}
		}
	}
}

// TriggerReconcile enqueues one reconcile run with the default threshold.
func (m *Manager) TriggerReconcile() error {
	_, err := m.queue.EnqueueJob(JobTypeReconcilePurchases, ReconcilePurchasesJobPayload{}.ToMap())
	return err
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}
