package core

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"sunsetdb/pkg/common"
	"sunsetdb/pkg/monitor"
	"sunsetdb/pkg/storage"
)

// Store is the storage the worker owns. Implementations need no locking:
// only the worker goroutine ever calls them.
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Scan(start, end []byte, limit int) ([]common.Record, error)
	Stats() map[string]interface{}
	Close() error
}

const DefaultQueueSize = 1024

// Engine runs a single worker goroutine that owns the store and executes
// commands one at a time, in channel arrival order. That order is the total
// order of all mutations.
type Engine struct {
	store   Store
	cmdCh   chan *Command
	closeCh chan struct{}
	done    chan struct{}
	stats   *monitor.WorkloadStats

	nextID    atomic.Uint64
	closeOnce sync.Once
	closeErr  error

	mu      sync.Mutex
	termErr error
}

// NewEngine starts the worker. queueSize bounds the command channel; when it
// is full Submit blocks until there is room or its context ends.
func NewEngine(store Store, queueSize int) *Engine {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	e := &Engine{
		store:   store,
		cmdCh:   make(chan *Command, queueSize),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
		stats:   monitor.NewWorkloadStats(),
	}
	go e.run()
	return e
}

// Submit hands cmd to the worker and returns its reply handle.
func (e *Engine) Submit(ctx context.Context, cmd *Command) (*Reply, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}
	select {
	case <-e.done:
		return nil, ErrClosed
	default:
	}

	cmd.id = e.nextID.Add(1)
	cmd.reply = make(chan Result, 1)
	select {
	case e.cmdCh <- cmd:
		return &Reply{id: cmd.id, ch: cmd.reply, done: e.done}, nil
	case <-e.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) do(ctx context.Context, cmd *Command) (Result, error) {
	reply, err := e.Submit(ctx, cmd)
	if err != nil {
		return Result{Err: err}, err
	}
	return reply.Wait(ctx)
}

func (e *Engine) Get(ctx context.Context, key []byte) ([]byte, error) {
	res, err := e.do(ctx, &Command{Op: OpGet, Key: key})
	return res.Value, err
}

func (e *Engine) Put(ctx context.Context, key, value []byte) error {
	_, err := e.do(ctx, &Command{Op: OpPut, Key: key, Value: value})
	return err
}

func (e *Engine) Delete(ctx context.Context, key []byte) error {
	_, err := e.do(ctx, &Command{Op: OpDel, Key: key})
	return err
}

func (e *Engine) Scan(ctx context.Context, start, end []byte, limit int) ([]common.Record, error) {
	res, err := e.do(ctx, &Command{Op: OpScan, Key: start, End: end, Limit: limit})
	return res.Records, err
}

// Stats merges the store's own numbers, read on the worker, with the
// engine's counters.
func (e *Engine) Stats(ctx context.Context) (map[string]interface{}, error) {
	res, err := e.do(ctx, &Command{Op: OpStats})
	if err != nil {
		return nil, err
	}
	st := res.Stats
	if st == nil {
		st = make(map[string]interface{})
	}
	w := e.stats.Snapshot()
	st["reads_total"] = w.ReadCount
	st["writes_total"] = w.WriteCount
	st["deletes_total"] = w.DeleteCount
	st["scans_total"] = w.ScanCount
	st["hits_total"] = w.HitCount
	st["misses_total"] = w.MissCount
	st["errors_total"] = w.ErrorCount
	st["rw_ratio"] = e.stats.GetReadWriteRatio()
	st["pending_commands"] = len(e.cmdCh)
	return st, nil
}

func (e *Engine) run() {
	defer close(e.done)

	for {
		select {
		case cmd := <-e.cmdCh:
			if err := e.dispatch(cmd); err != nil {
				e.terminate(err)
				return
			}
		case <-e.closeCh:
			e.drain()
			return
		}
	}
}

// dispatch executes one command and delivers its result. The returned error
// is non-nil only when the store can no longer be used.
func (e *Engine) dispatch(cmd *Command) error {
	var res Result
	switch cmd.Op {
	case OpGet:
		e.stats.RecordRead()
		res.Value, res.Err = e.store.Get(cmd.Key)
		switch {
		case res.Err == nil:
			e.stats.RecordHit()
		case errors.Is(res.Err, storage.ErrKeyNotFound):
			e.stats.RecordMiss()
		}
	case OpPut:
		e.stats.RecordWrite()
		res.Err = e.store.Put(cmd.Key, cmd.Value)
	case OpDel:
		e.stats.RecordDelete()
		res.Err = e.store.Delete(cmd.Key)
	case OpScan:
		e.stats.RecordScan()
		res.Records, res.Err = e.store.Scan(cmd.Key, cmd.End, cmd.Limit)
	case OpStats:
		res.Stats = e.store.Stats()
	}

	if res.Err != nil && !errors.Is(res.Err, storage.ErrKeyNotFound) {
		e.stats.RecordError()
		log.Printf("[Engine] %s #%d failed: %v", cmd.Op, cmd.id, res.Err)
	}
	cmd.reply <- res

	if errors.Is(res.Err, storage.ErrBroken) {
		return res.Err
	}
	return nil
}

// drain runs whatever was queued before Close.
func (e *Engine) drain() {
	for {
		select {
		case cmd := <-e.cmdCh:
			if err := e.dispatch(cmd); err != nil {
				e.terminate(err)
				return
			}
		default:
			return
		}
	}
}

// terminate answers every queued command with ErrClosed. Commands that slip
// in afterwards are answered by Reply.Wait noticing done.
func (e *Engine) terminate(err error) {
	log.Printf("[Engine] worker stopping: %v", err)
	e.mu.Lock()
	e.termErr = err
	e.mu.Unlock()
	for {
		select {
		case cmd := <-e.cmdCh:
			cmd.reply <- Result{Err: ErrClosed}
		default:
			return
		}
	}
}

// Done is closed when the worker has exited.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Err reports why the worker stopped on its own, or nil.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.termErr
}

// Close stops the worker after it has run the commands already queued, then
// closes the store. It is safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.closeCh)
		<-e.done
		e.closeErr = e.store.Close()
	})
	return e.closeErr
}
