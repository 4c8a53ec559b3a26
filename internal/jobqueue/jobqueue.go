// Package jobqueue implements the main-loop job queue: a bounded FIFO of
// deferred callbacks that lets arbitrary callers — including other
// goroutines and signal-handler-adjacent code — move work into the single-
// threaded event-loop execution domain described in spec §5.
//
// The fixed-capacity queue, FIFO pop-with-lock-released-around-invocation,
// and flush-the-whole-queue-and-log overflow policy mirror
// core/mainloop.c's asc_job_queue/run_jobs in the original astra-sm source
// this spec was distilled from.
package jobqueue

import (
	"log"
	"sync"
)

// Capacity is the maximum number of outstanding jobs. Queuing past this
// flushes the entire queue and logs an overflow (spec §4.E, §7).
const Capacity = 256

// Proc is a deferred callback. arg is passed through opaquely.
type Proc func(arg any)

type job struct {
	proc  Proc
	arg   any
	owner string
}

// Queue is the bounded FIFO job queue. The zero value is ready to use.
type Queue struct {
	mu   sync.Mutex
	jobs []job
}

// Queue appends {owner, proc, arg} to the queue. If the queue is already at
// Capacity, the entire queue is flushed and the overflow is logged — the
// design accepts loss of queued callbacks rather than blocking producers.
func (q *Queue) Queue(owner string, proc Proc, arg any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) >= Capacity {
		dropped := len(q.jobs)
		q.jobs = q.jobs[:0]
		log.Printf("jobqueue: overflow at capacity=%d, flushed %d pending job(s)", Capacity, dropped)
		return
	}
	q.jobs = append(q.jobs, job{proc: proc, arg: arg, owner: owner})
}

// Prune removes every queued job belonging to owner, in place, preserving
// the FIFO order of the remainder. Callers must Prune(owner=self) before
// freeing any state a pending job might dereference (spec §5).
func (q *Queue) Prune(owner string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.jobs[:0]
	for _, j := range q.jobs {
		if j.owner != owner {
			kept = append(kept, j)
		}
	}
	q.jobs = kept
}

// RunAll pops and invokes every queued job, FIFO, releasing the mutex around
// each invocation so a job may itself call Queue or Prune.
func (q *Queue) RunAll() {
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			return
		}
		j := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		j.proc(j.arg)
	}
}

// Len reports the number of jobs currently queued. Intended for tests and
// diagnostics only.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
