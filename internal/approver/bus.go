// Package approver implements the in-process publish/subscribe channel that
// turns a signing RPC call into an externally-arbitrated async request.
//
// The shape mirrors the teacher's concurrency module (geth-16-concurrency):
// the one piece of shared mutable state (the sequence counter) is an
// atomic, and everything else is handed off through channels rather than
// guarded by a lock.
package approver

import "sync/atomic"

// DisplayField is one ordered key→string pair in a TxRequest's display map.
type DisplayField struct {
	Key   string
	Value string
}

// txResult is the terminal outcome of a TxRequest, written at most once.
type txResult struct {
	value string
	err   error
}

// TxRequest is a pending signing request awaiting external arbitration.
type TxRequest struct {
	SequenceID    uint64
	Method        string
	RawParams     []any
	DisplayFields []DisplayField

	signer  func() (string, error)
	done    chan struct{}
	settled atomic.Bool
	result  txResult
}

// NewTxRequest constructs a TxRequest with the given sequence id. signer
// performs the actual signing: the dispatcher calls it directly when no
// approver is attached, and an approver calls it (via Sign) on approval.
func NewTxRequest(seq uint64, method string, rawParams []any, display []DisplayField, signer func() (string, error)) *TxRequest {
	return &TxRequest{
		SequenceID:    seq,
		Method:        method,
		RawParams:     rawParams,
		DisplayFields: display,
		signer:        signer,
		done:          make(chan struct{}),
	}
}

// Display returns the ordered display fields.
func (r *TxRequest) Display() []DisplayField { return r.DisplayFields }

// Sign invokes the underlying signer directly, bypassing arbitration. Used
// by the dispatcher when no approver is attached, and by an approver that
// approves the request.
func (r *TxRequest) Sign() (string, error) { return r.signer() }

// Resolve completes the request successfully. A second call (double-resolve)
// is silently ignored, as is any call after Reject already settled it.
func (r *TxRequest) Resolve(value string) {
	if !r.settled.CompareAndSwap(false, true) {
		return
	}
	r.result = txResult{value: value}
	close(r.done)
}

// Reject completes the request with an error. Silently ignored once settled.
func (r *TxRequest) Reject(err error) {
	if !r.settled.CompareAndSwap(false, true) {
		return
	}
	r.result = txResult{err: err}
	close(r.done)
}

// Wait blocks until Resolve or Reject is called and returns the outcome.
func (r *TxRequest) Wait() (string, error) {
	<-r.done
	return r.result.value, r.result.err
}

// Bus is a single-subject pub/sub channel: tx:request carrying *TxRequest.
// At most one approver is attached at a time; the dispatcher only ever
// queries HasApprover, never which approver.
type Bus struct {
	seq     atomic.Uint64
	count   atomic.Int32
	subject chan *TxRequest
}

// NewBus constructs an empty ApproverBus.
func NewBus() *Bus {
	return &Bus{subject: make(chan *TxRequest)}
}

// NextSequenceID returns a fresh, monotonically increasing sequence id.
func (b *Bus) NextSequenceID() uint64 {
	return b.seq.Add(1)
}

// HasApprover reports whether at least one listener is currently attached.
func (b *Bus) HasApprover() bool {
	return b.count.Load() > 0
}

// Attach registers the caller as the bus's approver, returning the channel
// of incoming requests and a detach function. The surrounding workflow must
// call detach on session teardown.
func (b *Bus) Attach() (requests <-chan *TxRequest, detach func()) {
	b.count.Add(1)
	var detached bool
	return b.subject, func() {
		if detached {
			return
		}
		detached = true
		b.count.Add(-1)
	}
}

// Emit publishes req to the attached approver and blocks until it is
// received. Callers must only Emit after observing HasApprover() == true.
func (b *Bus) Emit(req *TxRequest) {
	b.subject <- req
}
