// Package parallel provides the worker fan-out used by the path engine.
package parallel

import (
	"fmt"
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Number of worker goroutines to use.
}

// DefaultConfig enables one worker per CPU.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
	}
}

// Workers returns the effective worker count: 1 when disabled, at least 1 otherwise.
func (c Config) Workers() int {
	if !c.Enabled || c.NumWorkers < 1 {
		return 1
	}
	return c.NumWorkers
}

// Run executes f(worker, job) for job in [0, jobs) and blocks until every job finished.
//
// Job j always runs on worker j % Workers(), so a job's worker (and therefore its device
// and private scratch space) is reproducible across runs. Jobs of one worker run in
// increasing order. The error returned is the one of the lowest failing job index, and a
// panic inside f is converted into that job's error.
func Run(jobs int, f func(worker, job int) error, cfg Config) error {
	workers := min(cfg.Workers(), max(jobs, 1))
	errs := make([]error, jobs)

	runWorker := func(w int) {
		for j := w; j < jobs; j += workers {
			errs[j] = call(f, w, j)
		}
	}

	if workers == 1 {
		runWorker(0)
	} else {
		var wg sync.WaitGroup
		for w := range workers {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				runWorker(w)
			}(w)
		}
		wg.Wait()
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func call(f func(worker, job int) error, w, j int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %d on worker %d panicked: %v", j, w, r)
		}
	}()
	return f(w, j)
}

// ForGrid executes f(a, b) for every cell of an na x nb grid, row by row across workers.
func ForGrid(na, nb int, f func(worker, a, b int) error, cfg Config) error {
	return Run(na*nb, func(w, k int) error {
		return f(w, k/nb, k%nb)
	}, cfg)
}
