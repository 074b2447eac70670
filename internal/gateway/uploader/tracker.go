// Package uploader tracks the lifecycle of asynchronous file transfers
// to the upload service. Accepting an upload records a pending job and
// enqueues the transfer onto a fixed pool of workers; the HTTP response
// returns before the transfer runs, and clients learn the outcome by
// polling the status endpoint.
package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"composer/internal/domain"
	"composer/internal/gateway"
	"composer/internal/gateway/adapter/downstream"
	"composer/internal/gateway/adapter/inmem"
	"composer/internal/platform/telemetry"
)

const uploadPath = "/api/upload"

// Tracker owns the upload job table and the worker pool that drains it.
type Tracker struct {
	store      *inmem.UploadStore
	client     *downstream.Client
	jobTimeout time.Duration
	metrics    *telemetry.GatewayMetrics

	jobs    chan job
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

type job struct {
	id            string
	correlationID string
	file          downstream.FilePart
	userID        string
}

// New starts a tracker with the given worker count and queue depth.
// A full queue makes Accept reject with domain.ErrQueueFull instead of
// spawning unbounded goroutines. jobTimeout bounds each transfer; an
// expired transfer is marked failed. The metrics parameter is optional.
func New(store *inmem.UploadStore, client *downstream.Client, workers, queueDepth int, jobTimeout time.Duration, m *telemetry.GatewayMetrics) *Tracker {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = workers
	}
	t := &Tracker{
		store:      store,
		client:     client,
		jobTimeout: jobTimeout,
		metrics:    m,
		jobs:       make(chan job, queueDepth),
	}
	t.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go t.worker()
	}
	return t
}

// Accept validates the upload, records a pending job, and enqueues the
// transfer. It never blocks on upload-service I/O: the returned id can
// be polled immediately and will read as pending until a worker picks
// the job up.
func (t *Tracker) Accept(ctx context.Context, file downstream.FilePart, userID string) (string, error) {
	if userID == "" {
		return "", domain.Validation("user_id")
	}
	if file.FileName == "" || len(file.Content) == 0 {
		return "", &domain.ValidationError{Field: "file", Reason: "no file part in the request"}
	}

	id := uuid.New().String()
	t.store.Insert(id, file.FileName, int64(len(file.Content)))

	j := job{
		id:            id,
		correlationID: gateway.CorrelationIDFromContext(ctx),
		file:          file,
		userID:        userID,
	}
	select {
	case t.jobs <- j:
	default:
		// Queue full: surface backpressure instead of queueing unboundedly.
		t.store.SetStatus(id, domain.UploadFailed, "upload queue full")
		if t.metrics != nil {
			t.metrics.RecordUploadJob(ctx, "rejected")
		}
		return "", domain.ErrQueueFull
	}

	if t.metrics != nil {
		t.metrics.AddUploadQueueDepth(ctx, 1)
	}
	return id, nil
}

// Status returns the tracked record for id, or domain.ErrNotFound for
// an id that was never issued.
func (t *Tracker) Status(id string) (domain.UploadJob, error) {
	return t.store.Get(id)
}

// Close stops accepting work and waits for in-flight transfers.
func (t *Tracker) Close() {
	t.closeMu.Lock()
	if !t.closed {
		t.closed = true
		close(t.jobs)
	}
	t.closeMu.Unlock()
	t.wg.Wait()
}

func (t *Tracker) worker() {
	defer t.wg.Done()
	for j := range t.jobs {
		t.run(j)
	}
}

// run performs the actual transfer for one job. The client's HTTP
// response has long since been sent; outcomes land in the store only.
func (t *Tracker) run(j job) {
	ctx := context.Background()
	if j.correlationID != "" {
		ctx = gateway.ContextWithCorrelationID(ctx, j.correlationID)
	}
	if t.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.jobTimeout)
		defer cancel()
	}

	t.store.SetStatus(j.id, domain.UploadProcessing, "")
	if t.metrics != nil {
		defer t.metrics.AddUploadQueueDepth(ctx, -1)
	}

	resp, err := t.client.ForwardMultipart(ctx, downstream.Upload, uploadPath, j.file,
		map[string]string{"user_id": j.userID})
	if err != nil {
		t.fail(ctx, j, err.Error())
		return
	}
	if resp.Status < 200 || resp.Status > 299 {
		t.fail(ctx, j, fmt.Sprintf("upload service returned %d", resp.Status))
		return
	}

	t.store.SetStatus(j.id, domain.UploadCompleted, "upload complete")
	if t.metrics != nil {
		t.metrics.RecordUploadJob(ctx, "completed")
	}
	slog.Info("upload completed",
		"upload_id", j.id,
		"correlation_id", j.correlationID,
		"file_name", j.file.FileName,
		"status", http.StatusText(resp.Status),
	)
}

func (t *Tracker) fail(ctx context.Context, j job, msg string) {
	t.store.SetStatus(j.id, domain.UploadFailed, msg)
	if t.metrics != nil {
		t.metrics.RecordUploadJob(ctx, "failed")
	}
	slog.Error("upload failed",
		"upload_id", j.id,
		"correlation_id", j.correlationID,
		"file_name", j.file.FileName,
		"reason", msg,
	)
}
