// Package queue provides a repository-agnostic task queue for immediate and
// delayed one-time tasks.
//
// Enqueuer stores tasks through an EnqueuerRepository and returns their IDs.
// Worker claims due tasks through a WorkerRepository and dispatches them to
// handlers by task name. Failed tasks are retried with backoff by the
// repository and moved to a dead letter queue once their retries are
// exhausted or when no handler exists for them.
//
// MemoryStorage implements both repositories in memory. The pg package
// provides a PostgreSQL implementation for multi-process deployments.
//
// # Usage
//
//	storage := queue.NewMemoryStorage()
//	defer storage.Close()
//
//	enq, _ := queue.NewEnqueuer(storage)
//	id, err := enq.Enqueue(ctx, SendEmail{UserID: 42}, queue.WithDelay(time.Minute))
//
//	w, _ := queue.NewWorker(storage, queue.WithWorkerConfig(cfg))
//	_ = w.RegisterHandlers(queue.NewTaskHandler(func(ctx context.Context, p SendEmail) error {
//		return send(ctx, p.UserID)
//	}))
//	g.Go(w.Run(ctx))
//
// # Error Handling
//
// Package-level sentinel errors (e.g. ErrInvalidPriority, ErrNoHandlers) can be
// checked with errors.Is.
package queue
