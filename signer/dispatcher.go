package signer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/tee-agent-registry/interfaces"
	"github.com/ruteri/tee-agent-registry/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers     = 4
	DefaultQueueSize   = 1024
	DefaultCallTimeout = 30 * time.Second
)

type DispatcherOpts struct {
	Workers     int
	QueueSize   int
	CallTimeout time.Duration
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Dispatcher forwards authorized signature requests to a Signer on a pool of
// workers. Dispatch only enqueues; each outcome is reported to the event sink
// as a SignatureResultEvent once the signer answers.
type Dispatcher struct {
	signer  interfaces.Signer
	sink    interfaces.EventSink
	log     *slog.Logger
	queue   chan interfaces.SignatureRequest
	workers int
	timeout time.Duration
	metrics *metrics.Metrics

	// mu orders enqueueing against stopping, so nothing is queued after
	// the final drain.
	mu      sync.Mutex
	stopped bool
}

func NewDispatcher(signer interfaces.Signer, sink interfaces.EventSink, log *slog.Logger, opts DispatcherOpts) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}

	return &Dispatcher{
		signer:  signer,
		sink:    sink,
		log:     log,
		queue:   make(chan interfaces.SignatureRequest, opts.QueueSize),
		workers: opts.Workers,
		timeout: opts.CallTimeout,
		metrics: opts.Metrics,
	}
}

// Dispatch queues req and returns its request id. It fails with
// ErrSignerUnavailable when the queue is full or the dispatcher has stopped.
func (d *Dispatcher) Dispatch(ctx context.Context, req interfaces.SignatureRequest) (string, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return "", fmt.Errorf("%w: dispatcher stopped", interfaces.ErrSignerUnavailable)
	}
	select {
	case d.queue <- req:
		d.mu.Unlock()
	default:
		d.mu.Unlock()
		d.log.WarnContext(ctx, "Signature dispatch queue full",
			slog.String("request_id", req.RequestID),
			slog.String("caller", req.Caller.String()))
		return "", fmt.Errorf("%w: dispatch queue full", interfaces.ErrSignerUnavailable)
	}

	d.updateQueueDepth()
	d.log.DebugContext(ctx, "Signature request queued",
		slog.String("request_id", req.RequestID),
		slog.String("caller", req.Caller.String()),
		slog.Uint64("domain", uint64(req.Domain)))
	return req.RequestID, nil
}

// Run processes queued requests until ctx is done. Calls already handed to
// the signer are allowed to finish within the call timeout. Once Run returns
// the dispatcher refuses new requests.
func (d *Dispatcher) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-groupCtx.Done():
					return nil
				case req := <-d.queue:
					d.updateQueueDepth()
					d.process(context.WithoutCancel(groupCtx), req)
				}
			}
		})
	}
	err := group.Wait()

	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	d.dropQueued(context.WithoutCancel(ctx))
	return err
}

// dropQueued reports every request still queued at shutdown as failed, so
// each accepted request id gets exactly one signature_result event.
func (d *Dispatcher) dropQueued(ctx context.Context) {
	for {
		select {
		case req := <-d.queue:
			d.updateQueueDepth()
			d.log.Warn("Dropping queued signature request on shutdown", slog.String("request_id", req.RequestID))
			d.sink.Emit(ctx, interfaces.Event{
				Name: interfaces.EventSignatureResult,
				Time: time.Now().UTC(),
				Data: interfaces.SignatureResultEvent{
					RequestID: req.RequestID,
					Caller:    req.Caller,
					Path:      req.Path,
					Domain:    req.Domain,
					Error:     interfaces.ErrSignerUnavailable.Error() + ": dispatcher stopped",
				},
			})
		default:
			return
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, req interfaces.SignatureRequest) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	result := interfaces.SignatureResultEvent{
		RequestID: req.RequestID,
		Caller:    req.Caller,
		Path:      req.Path,
		Domain:    req.Domain,
	}

	resp, err := d.signer.Sign(callCtx, req)
	if err != nil {
		result.Error = err.Error()
	} else if resp != nil {
		result.Signature = resp.Signature
	}

	d.log.Debug("Signature call finished",
		slog.String("request_id", req.RequestID),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("ok", err == nil))

	d.sink.Emit(ctx, interfaces.Event{
		Name: interfaces.EventSignatureResult,
		Time: time.Now().UTC(),
		Data: result,
	})
}

func (d *Dispatcher) updateQueueDepth() {
	if d.metrics != nil {
		d.metrics.DispatchQueue.Set(float64(len(d.queue)))
	}
}
