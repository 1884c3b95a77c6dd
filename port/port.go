// Package port implements the output and requestor side of model wiring:
// Output broadcasts events to connected input ports, Requestor and
// UniRequestor broadcast a request and collect replies from connected
// replier ports. Connections are resolved once, at bench assembly time,
// and never change afterward.
package port

import (
	"context"
	"errors"
	"sync"

	"github.com/us-irs/asynchronix/mailbox"
)

// ErrNoReply is returned by UniRequestor.Send when no connected replier
// port produced a reply.
var ErrNoReply = errors.New("port: uni-requestor received no reply")

// edge binds a target mailbox address to an optional filter and mapper,
// applied in that order before the value reaches the target.
type edge[T any] struct {
	addr   mailbox.Address[T]
	filter func(T) bool
	mapper func(T) T
}

// EdgeOption customizes a single connection made via Output.Connect or
// Requestor.Connect.
type EdgeOption[T any] func(*edge[T])

// WithFilter drops values for which pred returns false before they reach
// this particular target, without affecting delivery to other targets.
func WithFilter[T any](pred func(T) bool) EdgeOption[T] {
	return func(e *edge[T]) { e.filter = pred }
}

// WithMap transforms a value before it reaches this particular target.
func WithMap[T any](fn func(T) T) EdgeOption[T] {
	return func(e *edge[T]) { e.mapper = fn }
}

func newEdge[T any](addr mailbox.Address[T], opts []EdgeOption[T]) edge[T] {
	e := edge[T]{addr: addr}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func (e edge[T]) deliver(ctx context.Context, value T) error {
	if e.filter != nil && !e.filter(value) {
		return nil
	}
	if e.mapper != nil {
		value = e.mapper(value)
	}
	return e.addr.Send(ctx, value)
}

// Output is a broadcast event port: every value sent through it is
// delivered to every connected input port's mailbox, in connection order.
// The zero value is usable; connections are added with Connect.
type Output[T any] struct {
	mu    sync.RWMutex
	edges []edge[T]
}

// NewOutput constructs an empty Output port.
func NewOutput[T any]() *Output[T] {
	return &Output[T]{}
}

// Connect adds addr as a broadcast target. Connections made after Send has
// already been called do not retroactively receive earlier sends.
func (o *Output[T]) Connect(addr mailbox.Address[T], opts ...EdgeOption[T]) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.edges = append(o.edges, newEdge(addr, opts))
}

// Len reports how many targets are currently connected.
func (o *Output[T]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.edges)
}

// Send delivers value to every connected target in connection order,
// stopping at and returning the first delivery error encountered.
func (o *Output[T]) Send(ctx context.Context, value T) error {
	o.mu.RLock()
	edges := make([]edge[T], len(o.edges))
	copy(edges, o.edges)
	o.mu.RUnlock()

	for _, e := range edges {
		if err := e.deliver(ctx, value); err != nil {
			return err
		}
	}
	return nil
}

// Request pairs a broadcast query payload with the channel its replier(s)
// must send their reply on. One Request is allocated per Send call, not
// per connected replier: every connected replier port receives the exact
// same Request value and writes its reply onto the same channel.
type Request[Req, Rep any] struct {
	Payload Req
	Reply   chan Rep
}

// Requestor broadcasts a request to every connected replier port and
// collects a reply from each of them, in the order the repliers finish
// responding (not necessarily connection order, since repliers run
// independently on the executor).
type Requestor[Req, Rep any] struct {
	mu    sync.RWMutex
	edges []edge[Request[Req, Rep]]
}

// NewRequestor constructs an empty Requestor port.
func NewRequestor[Req, Rep any]() *Requestor[Req, Rep] {
	return &Requestor[Req, Rep]{}
}

// Connect adds addr as a replier target.
func (r *Requestor[Req, Rep]) Connect(addr mailbox.Address[Request[Req, Rep]], opts ...EdgeOption[Request[Req, Rep]]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edges = append(r.edges, newEdge(addr, opts))
}

// Send broadcasts req to every connected replier and blocks until all of
// them have replied or ctx is cancelled, returning the collected replies.
func (r *Requestor[Req, Rep]) Send(ctx context.Context, req Req) ([]Rep, error) {
	r.mu.RLock()
	edges := make([]edge[Request[Req, Rep]], len(r.edges))
	copy(edges, r.edges)
	r.mu.RUnlock()

	replyCh := make(chan Rep, len(edges))
	for _, e := range edges {
		if err := e.deliver(ctx, Request[Req, Rep]{Payload: req, Reply: replyCh}); err != nil {
			return nil, err
		}
	}

	replies := make([]Rep, 0, len(edges))
	for i := 0; i < len(edges); i++ {
		select {
		case rep := <-replyCh:
			replies = append(replies, rep)
		case <-ctx.Done():
			return replies, ctx.Err()
		}
	}
	return replies, nil
}

// UniRequestor is a Requestor restricted to exactly one connected replier;
// Send returns that single reply directly instead of a slice.
type UniRequestor[Req, Rep any] struct {
	addr mailbox.Address[Request[Req, Rep]]
	set  bool
}

// NewUniRequestor constructs an unconnected UniRequestor port.
func NewUniRequestor[Req, Rep any]() *UniRequestor[Req, Rep] {
	return &UniRequestor[Req, Rep]{}
}

// Connect binds the single replier target. Calling it more than once
// replaces the previous target.
func (u *UniRequestor[Req, Rep]) Connect(addr mailbox.Address[Request[Req, Rep]]) {
	u.addr = addr
	u.set = true
}

// Send delivers req to the connected replier and waits for its single
// reply. It returns ErrNoReply if no target was ever connected.
func (u *UniRequestor[Req, Rep]) Send(ctx context.Context, req Req) (Rep, error) {
	var zero Rep
	if !u.set {
		return zero, ErrNoReply
	}

	replyCh := make(chan Rep, 1)
	if err := u.addr.Send(ctx, Request[Req, Rep]{Payload: req, Reply: replyCh}); err != nil {
		return zero, err
	}

	select {
	case rep := <-replyCh:
		return rep, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
