package core

import (
	"context"
	"errors"
	"fmt"

	"sunsetdb/pkg/common"
)

var (
	// ErrClosed means the worker is gone: the engine was closed or hit an
	// unrecoverable storage error. Submitters see it instead of blocking.
	ErrClosed     = errors.New("engine: closed")
	ErrBadCommand = errors.New("engine: bad command")
)

type Op byte

const (
	OpGet Op = iota + 1
	OpPut
	OpDel
	OpScan
	OpStats
)

func (op Op) String() string {
	switch op {
	case OpGet:
		return "get"
	case OpPut:
		return "put"
	case OpDel:
		return "del"
	case OpScan:
		return "scan"
	case OpStats:
		return "stats"
	}
	return fmt.Sprintf("op(%d)", byte(op))
}

// Command is one unit of work for the engine worker. Key, Value and End must
// not be modified until the reply has arrived.
type Command struct {
	Op    Op
	Key   []byte
	Value []byte
	// End and Limit bound OpScan; Key is the inclusive start.
	End   []byte
	Limit int

	id    uint64
	reply chan Result
}

func (c *Command) ID() uint64 { return c.id }

func (c *Command) validate() error {
	switch c.Op {
	case OpGet, OpPut, OpDel, OpScan, OpStats:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrBadCommand, c.Op)
}

// Result is what the worker produced for one command. Err carries the storage
// error verbatim, e.g. storage.ErrKeyNotFound for a missing key.
type Result struct {
	Value   []byte
	Records []common.Record
	Stats   map[string]interface{}
	Err     error
}

// Reply is the one-shot handle returned by Submit. Exactly one Result is ever
// delivered to it, and only for the command that created it. The slot is
// buffered, so a submitter that stops waiting never blocks the worker.
type Reply struct {
	id   uint64
	ch   <-chan Result
	done <-chan struct{}
}

func (r *Reply) ID() uint64 { return r.id }

// Wait blocks until the result arrives, ctx is done, or the worker exits
// without answering.
func (r *Reply) Wait(ctx context.Context) (Result, error) {
	select {
	case res := <-r.ch:
		return res, res.Err
	case <-r.done:
		// the worker answers everything it dequeued before exiting
		select {
		case res := <-r.ch:
			return res, res.Err
		default:
			return Result{Err: ErrClosed}, ErrClosed
		}
	case <-ctx.Done():
		return Result{Err: ctx.Err()}, ctx.Err()
	}
}
