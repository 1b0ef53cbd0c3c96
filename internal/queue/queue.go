package queue

import (
	"container/heap"
	"sync"
	"time"
)

// Job is one unit of pipeline work waiting for a worker.
type Job struct {
	ID         string
	EnqueuedAt time.Time
	Priority   int
	Run        func()

	seq uint64
}

type priorityJob struct {
	job   Job
	index int
}

type jobPQ []*priorityJob

func (pq jobPQ) Len() int { return len(pq) }
func (pq jobPQ) Less(i, j int) bool {
	// Higher priority first; for equal priority, arrival order (FIFO)
	if pq[i].job.Priority == pq[j].job.Priority {
		return pq[i].job.seq < pq[j].job.seq
	}
	return pq[i].job.Priority > pq[j].job.Priority
}
func (pq jobPQ) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i]; pq[i].index = i; pq[j].index = j }
func (pq *jobPQ) Push(x interface{}) { *pq = append(*pq, x.(*priorityJob)) }
func (pq *jobPQ) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[0 : n-1]
	return item
}

type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	pq       jobPQ
	capacity int
	seq      uint64
	closed   bool
}

func NewQueue(capacity int) *Queue {
	q := &Queue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	heap.Init(&q.pq)
	return q
}

func (q *Queue) Len() int { q.mu.Lock(); defer q.mu.Unlock(); return len(q.pq) }

// Enqueue reports false when the queue is full or closed.
func (q *Queue) Enqueue(j Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.pq) >= q.capacity {
		return false
	}
	q.seq++
	j.seq = q.seq
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now()
	}
	heap.Push(&q.pq, &priorityJob{job: j})
	q.notEmpty.Signal()
	return true
}

// Dequeue blocks until a job is available. Once the queue is closed and
// drained it returns false.
func (q *Queue) Dequeue() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pq) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.pq) == 0 {
		return Job{}, false
	}
	item := heap.Pop(&q.pq).(*priorityJob)
	return item.job, true
}

// Close stops accepting jobs. Jobs already queued are still handed out.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}

// Position returns the 1-based place of job id in dispatch order, or 0 if it
// is not queued.
func (q *Queue) Position(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	var found *Job
	for _, pj := range q.pq {
		if pj.job.ID == id {
			tmp := pj.job
			found = &tmp
			break
		}
	}
	if found == nil {
		return 0
	}
	pos := 1
	for _, pj := range q.pq {
		if pj.job.Priority > found.Priority {
			pos++
		} else if pj.job.Priority == found.Priority && pj.job.seq < found.seq {
			pos++
		}
	}
	return pos
}

type WorkerPool struct {
	workers int
	queue   *Queue
	wg      sync.WaitGroup
	handler func(Job)
}

func NewWorkerPool(workers int, queue *Queue, handler func(Job)) *WorkerPool {
	return &WorkerPool{workers: workers, queue: queue, handler: handler}
}

func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go func() {
			defer wp.wg.Done()
			for {
				job, ok := wp.queue.Dequeue()
				if !ok {
					return
				}
				wp.handler(job)
			}
		}()
	}
}

// Stop closes the queue and waits for workers to drain it.
func (wp *WorkerPool) Stop() {
	wp.queue.Close()
	wp.wg.Wait()
}
