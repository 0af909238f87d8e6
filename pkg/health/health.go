// Package health serves liveness and readiness probes backed by periodically
// evaluated checks.
//
// A probe flips to failing only after FailAfter consecutive errors and back
// to passing after RecoverAfter consecutive successes.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// Kind selects which endpoint a probe contributes to.
type Kind uint8

const (
	Liveness Kind = iota
	Readiness
)

func (k Kind) String() string {
	if k == Liveness {
		return "liveness"
	}
	return "readiness"
}

// CheckFunc returns nil when the checked dependency is usable.
type CheckFunc func(ctx context.Context) error

// Options tune a single probe. Zero values fall back to defaults.
type Options struct {
	Timeout      time.Duration
	FailAfter    int
	RecoverAfter int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = time.Second
	}
	if o.FailAfter <= 0 {
		o.FailAfter = 3
	}
	if o.RecoverAfter <= 0 {
		o.RecoverAfter = 1
	}
	return o
}

type probe struct {
	name  string
	kind  Kind
	opts  Options
	check CheckFunc

	passing atomic.Bool
	lastErr atomic.Pointer[string]

	// Owned by the evaluating goroutine.
	fails, oks int
}

func (p *probe) evaluate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	if err := p.check(ctx); err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.oks = 0
		p.fails++
		if p.fails >= p.opts.FailAfter {
			p.passing.Store(false)
		}
		return
	}
	p.lastErr.Store(nil)
	p.fails = 0
	p.oks++
	if p.oks >= p.opts.RecoverAfter {
		p.passing.Store(true)
	}
}

func (p *probe) failure() (string, bool) {
	if p.passing.Load() {
		return "", false
	}
	if msg := p.lastErr.Load(); msg != nil {
		return *msg, true
	}
	return "check is failing", true
}

// Registry owns the probes of one process.
type Registry struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	stop   context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a registry that reports not ready until MarkReady is called.
func New() *Registry {
	return &Registry{}
}

// Register adds a probe. Probes start out passing.
func (r *Registry) Register(kind Kind, name string, check CheckFunc, opts Options) {
	p := &probe{name: name, kind: kind, opts: opts.withDefaults(), check: check}
	p.passing.Store(true)

	r.mu.Lock()
	r.probes = append(r.probes, p)
	r.mu.Unlock()
}

// Run evaluates every probe immediately and then on each interval tick until
// ctx is cancelled or Stop is called.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.stop = cancel
	probes := append([]*probe(nil), r.probes...)
	r.mu.Unlock()

	for _, p := range probes {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				p.evaluate(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop halts evaluation and waits for in-flight checks. It is idempotent.
func (r *Registry) Stop() {
	r.mu.Lock()
	stop := r.stop
	r.stop = nil
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
	r.wg.Wait()
}

// MarkReady toggles the manual readiness gate. Set it to false at the start
// of shutdown to drain traffic.
func (r *Registry) MarkReady(ready bool) {
	r.ready.Store(ready)
}

// Ready reports whether the gate is open and every readiness probe passes.
func (r *Registry) Ready() bool {
	return r.ready.Load() && len(r.failures(Readiness)) == 0
}

func (r *Registry) failures(kind Kind) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string)
	for _, p := range r.probes {
		if p.kind != kind {
			continue
		}
		if msg, failing := p.failure(); failing {
			out[p.name] = msg
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (r *Registry) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	respond(w, r.failures(Liveness))
}

// ReadyEndpoint serves /readyz.
func (r *Registry) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := r.failures(Readiness)
	if !r.ready.Load() {
		failures["_gate"] = "service is not ready"
	}
	respond(w, failures)
}

func respond(w http.ResponseWriter, failures map[string]string) {
	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	status := http.StatusOK
	if len(names) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unhealthy")
		e.FieldStart("checks")
		e.ObjStart()
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failures[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
