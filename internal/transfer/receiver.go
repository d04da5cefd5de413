package transfer

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/yndnr/nodemesh-go/pkg/task"
)

// CompletionFunc receives the reassembled data of a successful session.
// Closing data deletes the backing temp file.
type CompletionFunc func(session Session, data io.ReadCloser)

// Receiver reassembles one session into a private temp file.
type Receiver struct {
	session    Session
	onComplete CompletionFunc
	logger     *slog.Logger
	metrics    Metrics

	mu      sync.Mutex
	file    *os.File
	path    string
	written map[int32]struct{}
	total   int32 // -1 until the final chunk arrived
	status  Status
	done    *task.Future[Status]
}

// NewReceiver opens the session's temp file in dir (os.TempDir when
// empty). onComplete may be nil, in which case the data is discarded.
func NewReceiver(session Session, dir string, onComplete CompletionFunc) (*Receiver, error) {
	f, err := os.CreateTemp(dir, "nodemesh-transfer-*")
	if err != nil {
		return nil, fmt.Errorf("transfer: create temp file: %w", err)
	}
	return &Receiver{
		session:    session,
		onComplete: onComplete,
		logger:     slog.Default().With("session", session.ID),
		metrics:    noopMetrics{},
		file:       f,
		path:       f.Name(),
		written:    make(map[int32]struct{}),
		total:      -1,
		done:       task.New[Status](),
	}, nil
}

// Session returns the session the receiver assembles.
func (r *Receiver) Session() Session { return r.session }

// Status returns the current status.
func (r *Receiver) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Done resolves once the session is terminal: StatusSuccess after the
// completion callback was handed the data, or StatusFailure with the cause.
func (r *Receiver) Done() *task.Future[Status] { return r.done }

// Handle writes chunk and reports whether it was accepted. Chunks of a
// failed session are never accepted.
func (r *Receiver) Handle(chunk Chunk) bool {
	accepted, complete := r.handle(chunk)
	if complete != nil {
		complete()
	}
	return accepted
}

func (r *Receiver) handle(chunk Chunk) (bool, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.status {
	case StatusFailure:
		return false, nil
	case StatusSuccess:
		_, dup := r.written[chunk.Index]
		return dup, nil
	}
	if chunk.Session.ChunkSize != r.session.ChunkSize {
		r.logger.Warn("chunk size changed within session", "want", r.session.ChunkSize, "got", chunk.Session.ChunkSize)
		return false, nil
	}
	if r.total >= 0 && chunk.Index >= r.total {
		r.logger.Warn("chunk beyond announced total", "index", chunk.Index, "total", r.total)
		return false, nil
	}

	if _, err := r.file.WriteAt(chunk.Payload, chunk.Offset()); err != nil {
		r.failLocked(fmt.Errorf("transfer: write chunk %d: %w", chunk.Index, err))
		return false, nil
	}
	r.written[chunk.Index] = struct{}{}
	r.metrics.ChunkReceived(len(chunk.Payload))

	if chunk.Final && r.total < 0 {
		r.total = chunk.TotalChunks
		for idx := range r.written {
			if idx >= r.total {
				r.failLocked(fmt.Errorf("%w: chunk %d written beyond total %d", ErrInvalidChunk, idx, r.total))
				return false, nil
			}
		}
	}

	if r.total < 0 || int32(len(r.written)) != r.total {
		return true, nil
	}
	return true, r.completeLocked()
}

// completeLocked moves the session to SUCCESS and returns the callback
// invocation, which runs after the lock is released.
func (r *Receiver) completeLocked() func() {
	if err := r.file.Close(); err != nil {
		r.failLocked(fmt.Errorf("transfer: close temp file: %w", err))
		return nil
	}
	data, err := os.Open(r.path)
	if err != nil {
		r.failLocked(fmt.Errorf("transfer: reopen temp file: %w", err))
		return nil
	}
	r.status = StatusSuccess
	r.metrics.SessionFinished(StatusSuccess)

	rc := &tempFile{File: data}
	return func() {
		if r.onComplete == nil {
			_ = rc.Close()
		} else {
			r.onComplete(r.session, rc)
		}
		_ = r.done.Complete(StatusSuccess)
	}
}

// Abort fails a running session with err (ErrAborted when nil) and removes
// its temp file. Terminal sessions are left alone.
func (r *Receiver) Abort(err error) {
	if err == nil {
		err = ErrAborted
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusRunning {
		return
	}
	r.failLocked(err)
}

func (r *Receiver) failLocked(err error) {
	r.status = StatusFailure
	_ = r.file.Close()
	if rmErr := os.Remove(r.path); rmErr != nil && !os.IsNotExist(rmErr) {
		r.logger.Warn("failed to remove transfer temp file", "path", r.path, "error", rmErr)
	}
	r.metrics.SessionFinished(StatusFailure)
	r.logger.Warn("chunked transfer session failed", "error", err)
	_ = r.done.Resolve(StatusFailure, err)
}

// tempFile removes itself when closed.
type tempFile struct {
	*os.File
	once sync.Once
}

func (f *tempFile) Close() error {
	var err error
	f.once.Do(func() {
		err = f.File.Close()
		if rmErr := os.Remove(f.Name()); rmErr != nil && err == nil {
			err = rmErr
		}
	})
	return err
}
