package worker

import (
	"context"
	"fmt"

	"scribeit/internal/logger"
)

type worker struct {
	pool       *jobChannelPool
	jobChannel chan job
}

func newWorker(pool *jobChannelPool, ch chan job) *worker {
	return &worker{
		pool:       pool,
		jobChannel: ch,
	}
}

func (w *worker) start() {
	go func() {
		for j := range w.jobChannel {
			if j.stop {
				w.pool.retire(w.jobChannel)
				return
			}
			w.run(j.task)
			if !w.pool.release(w.jobChannel) {
				return
			}
		}
	}()
}

func (w *worker) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(context.Background(), "worker task panicked", fmt.Errorf("%v", r), logger.Fields{"owner": task.Owner()})
		}
	}()
	task.Run()
}
