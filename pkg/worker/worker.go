package worker

import (
	"context"
	"sync"

	"github.com/nimasrn/vendzz-dispatch/pkg/logger"
)

type WorkerHandler = func(ctx context.Context, workerIndex int, job interface{})

type WorkerManager struct {
	jobChannel     chan interface{}
	numberOfWorker int
	do             WorkerHandler
	waiter         sync.WaitGroup
	mu             sync.Mutex
	running        bool
}

// NewWorkerManager is a job manager based on go routines. Jobs published with
// Enqueue are distributed among numberOfWorkers goroutines until the context
// passed to Start is cancelled.
func NewWorkerManager(bufferSize, numberOfWorkers int) *WorkerManager {
	if numberOfWorkers < 1 {
		numberOfWorkers = 1
	}
	return &WorkerManager{
		numberOfWorker: numberOfWorkers,
		jobChannel:     make(chan interface{}, bufferSize),
	}
}

func (w *WorkerManager) GetUnreadCount() int64 {
	return int64(len(w.jobChannel))
}

func (w *WorkerManager) SetWorker(worker WorkerHandler) {
	w.do = worker
}

func (w *WorkerManager) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Enqueue publishes a job, blocking while the buffer is full.
func (w *WorkerManager) Enqueue(ctx context.Context, val interface{}) error {
	select {
	case w.jobChannel <- val:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs the workers and blocks until ctx is cancelled and every worker
// has returned.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go func(index int) {
			defer w.waiter.Done()
			for {
				select {
				case job := <-w.jobChannel:
					w.run(ctx, index, job)
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}
	w.waiter.Wait()

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	logger.Info("[worker] all workers stopped", "workers", w.numberOfWorker)
	return ctx.Err()
}

func (w *WorkerManager) run(ctx context.Context, index int, job interface{}) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[worker] job panicked", "worker", index, "panic", r)
		}
	}()
	w.do(ctx, index, job)
}
