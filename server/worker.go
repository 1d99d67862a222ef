package server

import (
	"errors"
	"fmt"
)

// ErrWorkerStopped is returned by Do after Stop.
var ErrWorkerStopped = errors.New("worker stopped")

// workRequest is a unit of work to be executed on the worker goroutine.
type workRequest struct {
	fn   func() (interface{}, error)
	done chan workResult
}

// workResult holds the return value of a unit of work.
type workResult struct {
	value interface{}
	err   error
}

// Worker serializes all session access through a single goroutine.
// Sessions are not safe for concurrent use; every handler that touches one
// goes through the worker.
type Worker struct {
	requests chan workRequest
	quit     chan struct{}
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker() *Worker {
	w := &Worker{
		requests: make(chan workRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, recovering from panics.
func (w *Worker) execute(fn func() (interface{}, error)) (result workResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Criticalf("worker: recovered from panic: %v", r)
			result = workResult{err: fmt.Errorf("panic: %v", r)}
		}
	}()
	value, err := fn()
	return workResult{value: value, err: err}
}

// Do submits fn for execution on the worker goroutine and blocks until it
// completes. It returns the result and any error, including panics.
func (w *Worker) Do(fn func() (interface{}, error)) (interface{}, error) {
	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
}

// Stop shuts down the worker goroutine.
func (w *Worker) Stop() {
	close(w.quit)
}
