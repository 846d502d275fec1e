package worker

import (
	"errors"
	"time"
)

// ErrDispatcherBusy is returned when the job queue cannot take more work.
var ErrDispatcherBusy = errors.New("dispatcher queue full")

type DispatcherConfig struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
}

// Dispatcher feeds queued jobs to a pool of workers.
type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Job
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = 1
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	d := &Dispatcher{
		pool:     newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.WorkerIdleTimeout),
		jobQueue: make(chan Job, cfg.QueueSize),
	}
	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}
	go d.run()
	return d
}

// Submit queues a job without blocking. Callers map ErrDispatcherBusy to a
// retryable response.
func (d *Dispatcher) Submit(job Job) error {
	select {
	case d.jobQueue <- job:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

func (d *Dispatcher) run() {
	for job := range d.jobQueue {
		workerChan := d.pool.acquire()
		workerChan <- job
	}
}
