package worker

// JobType tells a worker what to do with a received job.
type JobType int

const (
	Forward JobType = iota
	Stop
)

// Job is one unit of asynchronous work, currently only the forwarding of a
// submission to the external processor.
type Job struct {
	Type JobType
	Task func()
}

type Worker struct {
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(pool *jobChannelPool) *Worker {
	return &Worker{
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			if job.Type == Stop {
				return
			}
			if job.Task != nil {
				job.Task()
			}
			w.pool.Release(w.jobChannel)
		}
	}()
}
