// Package health serves liveness and readiness probes for the delivery API.
//
// Every registered check runs on its own ticker. A check turns unhealthy
// only after FailureThreshold consecutive failures and recovers after
// SuccessThreshold consecutive successes, so a single slow ping does not
// pull the pod out of rotation.
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

// CheckFunc returns nil when the checked dependency is usable.
type CheckFunc func(ctx context.Context) error

// Kind selects the endpoint a check contributes to.
type Kind uint8

const (
	Liveness Kind = iota
	Readiness
)

// Check describes one registered probe.
type Check struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	Func    CheckFunc
	// Zero thresholds default to 3 failures and 1 success.
	FailureThreshold int
	SuccessThreshold int
	// Optional checks are reported but never fail the endpoint. Used for
	// caches and brokers the service can run without.
	Optional bool
}

type probe struct {
	Check

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	// only touched by the probe's own goroutine
	fails int
	oks   int
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	err := p.Func(ctx)
	p.lastErr.Store(&err)

	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= p.FailureThreshold {
			p.healthy.Store(false)
		}
		return
	}
	p.fails = 0
	p.oks++
	if p.oks >= p.SuccessThreshold {
		p.healthy.Store(true)
	}
}

func (p *probe) err() error {
	if e := p.lastErr.Load(); e != nil {
		return *e
	}
	return nil
}

// Health tracks probes and the manual readiness switch.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
}

// New creates a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Register adds a check. Checks start healthy. Register must be called
// before Start.
func (h *Health) Register(c Check) {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	p := &probe{Check: c}
	p.healthy.Store(true)

	h.mu.Lock()
	h.probes = append(h.probes, p)
	h.mu.Unlock()
}

// Start runs every check now and then once per interval until Stop or ctx
// cancellation.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := append([]*probe(nil), h.probes...)
	h.mu.Unlock()

	for _, p := range probes {
		go loop(ctx, p, interval)
	}
}

func loop(ctx context.Context, p *probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

// Stop halts the background checks. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness switch. It is turned off first
// during graceful shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the switch is on and every required readiness
// check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, p := range h.snapshot(Readiness) {
		if !p.Optional && !p.healthy.Load() {
			return false
		}
	}
	return true
}

func (h *Health) snapshot(kind Kind) []*probe {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*probe
	for _, p := range h.probes {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	write(w, true, h.snapshot(Liveness))
}

// ReadyEndpoint serves /readyz. It fails while the manual switch is off.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	write(w, h.ready.Load(), h.snapshot(Readiness))
}

// write renders {"status":"ok|unhealthy","checks":{name:{status,error?,optional?}}}.
func write(w http.ResponseWriter, ready bool, probes []*probe) {
	ok := ready
	for _, p := range probes {
		if !p.Optional && !p.healthy.Load() {
			ok = false
		}
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	if ok {
		e.Str("ok")
	} else {
		e.Str("unhealthy")
	}
	if !ready {
		e.FieldStart("reason")
		e.Str("service is not ready")
	}
	if len(probes) > 0 {
		e.FieldStart("checks")
		e.ObjStart()
		for _, p := range probes {
			e.FieldStart(p.Name)
			e.ObjStart()
			e.FieldStart("status")
			if p.healthy.Load() {
				e.Str("ok")
			} else {
				e.Str("failing")
				if err := p.err(); err != nil {
					e.FieldStart("error")
					e.Str(err.Error())
				}
			}
			if p.Optional {
				e.FieldStart("optional")
				e.Bool(true)
			}
			e.ObjEnd()
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
