package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima/engine/core"
)

/** @brief Describes a job to be run. */
type JobTask struct {
	Name string
	/** @brief Runs on a worker goroutine. Required. */
	Run func() (interface{}, error)
	/** @brief Called from Update on the main goroutine with the result of Run. Optional. */
	OnComplete func(result interface{})
	/** @brief Called from Update on the main goroutine when Run failed. Optional. */
	OnFailure func(err error)
}

type jobResult struct {
	task   JobTask
	result interface{}
	err    error
}

// JobSystem runs tasks on a fixed set of workers and hands their results
// back to the goroutine calling Update, so callbacks may touch GPU state.
type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	mu      sync.Mutex
	results []jobResult
	pending int
	cond    *sync.Cond

	// queueMu orders sends on jobQueue against its close.
	queueMu sync.RWMutex
	closed  bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = fmt.Errorf("job system is shut down")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}
	js.cond = sync.NewCond(&js.mu)
	js.start()
	return js, nil
}

func (js *JobSystem) Name() string {
	return "jobs"
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				result, err := job.Run()
				if err != nil {
					core.LogError("job %s failed: %s", job.Name, err)
				}
				js.mu.Lock()
				js.results = append(js.results, jobResult{task: job, result: result, err: err})
				js.pending--
				js.cond.Broadcast()
				js.mu.Unlock()
			}
		}()
	}
}

/**
 * @brief Submits the provided job to be queued for execution.
 * Blocks while the queue is full.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	js.queueMu.RLock()
	defer js.queueMu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}

	js.mu.Lock()
	js.pending++
	js.mu.Unlock()

	js.jobQueue <- jt
	return nil
}

/**
 * @brief Runs the callbacks of every finished job. Should happen once an update cycle.
 */
func (js *JobSystem) Update(deltaTime float64) error {
	js.mu.Lock()
	results := js.results
	js.results = nil
	js.mu.Unlock()

	for _, r := range results {
		if r.err != nil {
			if r.task.OnFailure != nil {
				r.task.OnFailure(r.err)
			}
			continue
		}
		if r.task.OnComplete != nil {
			r.task.OnComplete(r.result)
		}
	}
	return nil
}

// Wait blocks until every submitted job has finished running, then runs
// their callbacks.
func (js *JobSystem) Wait() error {
	js.mu.Lock()
	for js.pending > 0 {
		js.cond.Wait()
	}
	js.mu.Unlock()
	return js.Update(0)
}

/**
 * @brief Shuts the job system down. Queued jobs still run, their callbacks are dropped.
 */
func (js *JobSystem) Shutdown() error {
	js.queueMu.Lock()
	if js.closed {
		js.queueMu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.queueMu.Unlock()

	js.wg.Wait()
	return nil
}
