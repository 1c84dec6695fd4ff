// Package framestream implements the Real-time Frame Worker: a one-slot
// backpressured queue feeding a single background loop that throttles to
// every N-th frame and stores the latest detection result (or error) in a
// shared slot a WebSocket sender can read without blocking the producer.
package framestream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bpomverify/bpomverify/internal/detectorport"
)

// Frame is one pushed video frame: its sequence number (for diagnostics)
// and the raw encoded image bytes.
type Frame struct {
	Seq  int64
	Data []byte
}

// Result is the worker's latest processed outcome. Err is non-empty
// instead of Boxes being populated when detection failed — the slot is
// never left half-written.
type Result struct {
	Boxes []detectorport.Box
	Err   string
}

// DefaultProcessEvery matches the reference worker's throttle.
const DefaultProcessEvery = 2

// Worker runs a single background loop over pushed frames.
type Worker struct {
	detector     detectorport.Detector
	processEvery int64

	mu      sync.Mutex
	pending *Frame
	notify  chan struct{}

	seqSeen int64

	resultMu sync.RWMutex
	last     *Result

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Worker. processEvery <= 0 falls back to
// DefaultProcessEvery.
func New(detector detectorport.Detector, processEvery int) *Worker {
	if processEvery <= 0 {
		processEvery = DefaultProcessEvery
	}
	return &Worker{
		detector:     detector,
		processEvery: int64(processEvery),
		notify:       make(chan struct{}, 1),
	}
}

// Start launches the background processing loop. Calling Start twice
// without an intervening Stop is a no-op.
func (w *Worker) Start(ctx context.Context) {
	if w.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(loopCtx)
}

// Stop cancels the loop and waits for it to exit cleanly, never leaking
// the in-flight decode buffer.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
}

// Push enqueues a frame, first dropping whatever frame is already pending
// (the one-slot backpressure the loop falls behind on is always the
// stalest, not the newest).
func (w *Worker) Push(frame Frame) {
	w.mu.Lock()
	w.pending = &frame
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Last returns the most recently produced Result, or nil if nothing has
// been processed yet.
func (w *Worker) Last() *Result {
	w.resultMu.RLock()
	defer w.resultMu.RUnlock()
	return w.last
}

func (w *Worker) setLast(r *Result) {
	w.resultMu.Lock()
	w.last = r
	w.resultMu.Unlock()
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.notify:
			frame := w.take()
			if frame == nil {
				continue
			}
			if atomic.AddInt64(&w.seqSeen, 1)%w.processEvery != 0 {
				continue
			}
			boxes, err := w.detector.Detect(ctx, frame.Data)
			if err != nil {
				w.setLast(&Result{Err: err.Error()})
				continue
			}
			w.setLast(&Result{Boxes: boxes})
		}
	}
}

func (w *Worker) take() *Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	frame := w.pending
	w.pending = nil
	return frame
}
