// Package coalesce debounces rapid edits of the same value into a single write.
//
// Every key has an optimistic local value, which callers see immediately, and a
// confirmed value, the last one the store accepted. Each mutation restarts the
// window; when the window elapses only the latest local value is written. A failed
// write rolls local back to confirmed and records the error on the key.
package coalesce

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var ErrClosed = errors.New("coalescer closed")

// Loader reads the authoritative value for a key that has no pending edits.
type Loader[V any] func(ctx context.Context, key string) (V, error)

// Writer persists target. confirmed is the value the local edits were based on.
// It returns the value the store now holds.
type Writer[V any] func(ctx context.Context, key string, confirmed, target V) (V, error)

// Rebase carries edits made during an in-flight write over to the value the write returned.
type Rebase[V any] func(local, written, stored V) V

type Options[V any] struct {
	Window       time.Duration
	WriteTimeout time.Duration
	Rebase       Rebase[V]
	OnError      func(key string, err error)
}

type State[V any] struct {
	Key       string `json:"key"`
	Local     V      `json:"local"`
	Confirmed V      `json:"confirmed"`
	Pending   bool   `json:"pending"`
	Err       error  `json:"-"`
}

type entry[V any] struct {
	local     V
	confirmed V
	pending   bool
	flushing  bool
	again     bool
	gen       uint64
	timer     *time.Timer
	err       error
}

func (e *entry[V]) idle() bool {
	return !e.pending && !e.flushing
}

func (e *entry[V]) state(key string) State[V] {
	return State[V]{Key: key, Local: e.local, Confirmed: e.confirmed, Pending: e.pending || e.flushing, Err: e.err}
}

type Coalescer[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	closed  bool
	// 書き込みが1件終わるたびに閉じて作り直す
	settled chan struct{}

	load  Loader[V]
	write Writer[V]
	opts  Options[V]
}

func New[V any](load Loader[V], write Writer[V], opts Options[V]) *Coalescer[V] {
	if opts.Window <= 0 {
		opts.Window = 300 * time.Millisecond
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Rebase == nil {
		//後勝ち
		opts.Rebase = func(local, _, _ V) V { return local }
	}
	return &Coalescer[V]{
		entries: map[string]*entry[V]{},
		settled: make(chan struct{}),
		load:    load,
		write:   write,
		opts:    opts,
	}
}

// Mutate applies fn to the local value of key and restarts the window.
// If fn returns an error nothing changes and the error is returned.
func (c *Coalescer[V]) Mutate(ctx context.Context, key string, fn func(cur V) (V, error)) (State[V], error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return State[V]{}, ErrClosed
	}

	e := c.entries[key]
	if e == nil || e.idle() {
		//サーバー値を取り直す（ロックの外で）
		c.mu.Unlock()
		fresh, err := c.load(ctx, key)
		if err != nil {
			return State[V]{}, err
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return State[V]{}, ErrClosed
		}
		e = c.entries[key]
		if e == nil {
			e = &entry[V]{}
			c.entries[key] = e
		}
		if e.idle() {
			e.local, e.confirmed = fresh, fresh
		}
	}
	defer c.mu.Unlock()

	next, err := fn(e.local)
	if err != nil {
		st := e.state(key)
		if e.idle() && e.err == nil {
			delete(c.entries, key)
		}
		return st, err
	}
	e.local = next
	e.pending = true
	e.err = nil
	e.gen++
	c.arm(key, e)

	return e.state(key), nil
}

func (c *Coalescer[V]) arm(key string, e *entry[V]) {
	if e.timer != nil {
		e.timer.Stop()
	}
	gen := e.gen
	e.timer = time.AfterFunc(c.opts.Window, func() { c.fire(key, gen) })
}

func (c *Coalescer[V]) fire(key string, gen uint64) {
	c.mu.Lock()
	if c.closed {
		//閉じた後はFlushが書く
		c.mu.Unlock()
		return
	}
	e := c.entries[key]
	if e == nil || e.gen != gen || !e.pending {
		c.mu.Unlock()
		return
	}
	if e.flushing {
		//書き込み中。終わったらもう一度
		e.again = true
		c.mu.Unlock()
		return
	}
	confirmed, target := c.begin(e)
	c.mu.Unlock()

	c.flush(context.Background(), key, gen, confirmed, target)
}

// begin marks e as being written. Caller holds c.mu.
func (c *Coalescer[V]) begin(e *entry[V]) (V, V) {
	e.flushing = true
	e.pending = false
	return e.confirmed, e.local
}

func (c *Coalescer[V]) flush(parent context.Context, key string, gen uint64, confirmed, target V) {
	ctx, cancel := context.WithTimeout(parent, c.opts.WriteTimeout)
	defer cancel()

	stored, err := c.write(ctx, key, confirmed, target)

	c.mu.Lock()
	refire, next := c.settle(key, gen, target, stored, err)
	close(c.settled)
	c.settled = make(chan struct{})
	c.mu.Unlock()

	if err != nil && c.opts.OnError != nil {
		c.opts.OnError(key, err)
	}
	if refire {
		go c.fire(key, next)
	}
}

// settle records the result of a write. Caller holds c.mu.
func (c *Coalescer[V]) settle(key string, gen uint64, target, stored V, err error) (bool, uint64) {
	e := c.entries[key]
	if e == nil {
		return false, 0
	}
	e.flushing = false

	if err != nil {
		//最後にサーバーが受け付けた値へ戻す
		e.local = e.confirmed
		e.pending = false
		e.again = false
		e.err = err
		e.gen++
		if e.timer != nil {
			e.timer.Stop()
		}
		return false, 0
	}

	e.confirmed = stored
	if e.gen == gen {
		//その後の編集なし
		e.local = stored
		delete(c.entries, key)
		return false, 0
	}

	e.local = c.opts.Rebase(e.local, target, stored)
	e.pending = true
	if e.again && !c.closed {
		e.again = false
		return true, e.gen
	}
	return false, 0
}

// State returns the current view of key; ok is false when nothing is pending or failed.
func (c *Coalescer[V]) State(key string) (State[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return State[V]{}, false
	}
	return e.state(key), true
}

// States lists keys with the given prefix, sorted by key.
func (c *Coalescer[V]) States(prefix string) []State[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := []State[V]{}
	for k, e := range c.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, e.state(k))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Flush writes every pending key now, without waiting for the window, and returns once
// no key is pending or being written. Writes started here use ctx, so a cancelled ctx
// fails them (rolled back and reported through OnError) and Flush returns ctx.Err().
func (c *Coalescer[V]) Flush(ctx context.Context) error {
	type job struct {
		key               string
		gen               uint64
		confirmed, target V
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.mu.Lock()
		var jobs []job
		busy := false
		for k, e := range c.entries {
			if e.flushing {
				busy = true
				continue
			}
			if !e.pending {
				continue
			}
			if e.timer != nil {
				e.timer.Stop()
			}
			confirmed, target := c.begin(e)
			jobs = append(jobs, job{key: k, gen: e.gen, confirmed: confirmed, target: target})
		}
		settled := c.settled
		c.mu.Unlock()

		if len(jobs) == 0 && !busy {
			return nil
		}

		for _, j := range jobs {
			c.flush(ctx, j.key, j.gen, j.confirmed, j.target)
		}
		if len(jobs) > 0 {
			continue
		}

		//他で書き込み中。終わればpendingが残っていないか見直す
		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close rejects further mutations and flushes what is pending.
func (c *Coalescer[V]) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.Flush(ctx)
}
