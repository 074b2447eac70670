package inmem

import (
	"container/list"
	"sync"
	"time"

	"composer/internal/domain"
)

// UploadStore is the mutex-guarded table of upload job records. Each
// record has exactly two writers: the acceptor inserts it once and the
// paired worker advances it, so no cross-record locking is needed.
// Readers always observe a whole record, never a torn one.
//
// Completed and failed records are evicted oldest-first once the table
// exceeds historyLimit, so a long-lived process does not grow without
// bound under sustained upload traffic.
type UploadStore struct {
	now          func() time.Time
	historyLimit int

	mu    sync.RWMutex
	jobs  map[string]domain.UploadJob
	order *list.List // upload ids, insertion order
}

// NewUploadStore creates an upload job table. historyLimit caps the
// number of retained records; zero or negative means unbounded.
// clock is injectable for deterministic testing.
func NewUploadStore(historyLimit int, clock func() time.Time) *UploadStore {
	if clock == nil {
		clock = time.Now
	}
	return &UploadStore{
		now:          clock,
		historyLimit: historyLimit,
		jobs:         make(map[string]domain.UploadJob),
		order:        list.New(),
	}
}

// Insert records a fresh PENDING job for the given id.
func (s *UploadStore) Insert(id, fileName string, fileSize int64) domain.UploadJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	job := domain.UploadJob{
		UploadID:  id,
		Status:    domain.UploadPending,
		FileName:  fileName,
		FileSize:  fileSize,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[id] = job
	s.order.PushBack(id)
	s.evictLocked()
	return job
}

// SetStatus advances a job to the given status. Transitions out of a
// terminal state are ignored: a completed or failed job never reverts.
// Returns the stored record and false if the id is unknown.
func (s *UploadStore) SetStatus(id string, status domain.UploadStatus, message string) (domain.UploadJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.UploadJob{}, false
	}
	if job.Status.Terminal() {
		return job, true
	}
	job.Status = status
	job.Message = message
	job.UpdatedAt = s.now()
	s.jobs[id] = job
	return job, true
}

// Get returns the record for id, or domain.ErrNotFound for an id that
// was never issued (or has been evicted). Pure read.
func (s *UploadStore) Get(id string) (domain.UploadJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.UploadJob{}, domain.ErrNotFound
	}
	return job, nil
}

// Len returns the number of retained records.
func (s *UploadStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// evictLocked drops the oldest terminal records while over the cap.
// Records still pending or processing are never evicted.
func (s *UploadStore) evictLocked() {
	if s.historyLimit <= 0 {
		return
	}
	for e := s.order.Front(); e != nil && len(s.jobs) > s.historyLimit; {
		next := e.Next()
		id := e.Value.(string)
		if job, ok := s.jobs[id]; !ok || job.Status.Terminal() {
			delete(s.jobs, id)
			s.order.Remove(e)
		}
		e = next
	}
}
