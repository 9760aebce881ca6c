package metrics

import (
	"bufio"
	"context"
	"net"
	"sync"
	"syscall"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/sys/unix"

	"github.com/coregate/coregate/internal/logger"
)

// Exposer serves registry's metrics over a hand-rolled text-exposition
// HTTP endpoint: a single accepting goroutine, one connection per
// request, no keep-alive — the same shape as the original's
// SocketStreambuf-based server_thread, traded for net.Listener plus a
// buffered writer instead of a raw streambuf, since Go's net package
// already gives a buffered, non-blocking-safe socket abstraction.
//
// net/http is deliberately not used: spec.md's wire contract (accept,
// discard whatever the client sent, write a bare "HTTP/1.1 200 OK\r\n\r\n"
// status line, then the body, then close) is simpler than what
// net/http.Server provides, and matching it exactly keeps this core
// scrapeable by a Prometheus server without pulling in the full HTTP
// stack for what is, in effect, a fixed single-shot response.
type Exposer struct {
	reg *Registry

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewExposer creates an Exposer for reg. Start must be called to begin
// serving.
func NewExposer(reg *Registry) *Exposer {
	return &Exposer{reg: reg}
}

// Start binds addr (e.g. ":9090") with SO_REUSEADDR and begins accepting
// in a background goroutine. The listen backlog is the OS default, not 3
// (see setReuseAddr).
func (e *Exposer) Start(addr string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener != nil {
		logger.Error("metrics exposer already running")
		return nil
	}

	lc := net.ListenConfig{Control: setReuseAddr}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	e.listener = ln

	e.wg.Add(1)
	go e.acceptLoop()
	return nil
}

// Stop closes the listener and waits for the accept loop to exit.
func (e *Exposer) Stop() error {
	e.mu.Lock()
	ln := e.listener
	e.listener = nil
	e.mu.Unlock()

	if ln == nil {
		return nil
	}
	err := ln.Close()
	e.wg.Wait()
	return err
}

// setReuseAddr is the net.ListenConfig.Control callback that sets
// SO_REUSEADDR before bind, matching exposer.cc's setsockopt call — Go's
// net package does not set it by default. The listen(2) backlog itself
// (3, in the original) is not adjustable through the standard net
// package; the OS default backlog is used instead, which only matters
// under a burst of simultaneous scrapers this endpoint is not expected
// to see.
func setReuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

func (e *Exposer) acceptLoop() {
	defer e.wg.Done()
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			return
		}
		e.serveOne(conn)
	}
}

func (e *Exposer) serveOne(conn net.Conn) {
	defer conn.Close()

	// Discard whatever the scraper sent; this endpoint has exactly one
	// response regardless of method, path, or headers.
	buf := make([]byte, 1024)
	_, _ = conn.Read(buf)

	families, err := e.reg.Gatherer().Gather()
	if err != nil {
		logger.Warn("failed to gather metrics", "error", err)
	}
	for _, f := range families {
		compactFamily(f)
	}

	w := bufio.NewWriter(conn)
	_, _ = w.WriteString("HTTP/1.1 200 OK\r\n\r\n")
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, f := range families {
		if err := enc.Encode(f); err != nil {
			logger.Debug("failed to encode metric family", "family", f.GetName(), "error", err)
		}
	}
	_ = w.Flush()
}

// isMetricEmpty reports whether a single sample carries no observations,
// mirroring exposer.cc's is_metric_empty: only counters, histograms, and
// summaries carry a meaningful "nothing happened yet" state.
func isMetricEmpty(typ dto.MetricType, m *dto.Metric) bool {
	switch typ {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue() == 0
	case dto.MetricType_HISTOGRAM:
		return m.GetHistogram().GetSampleCount() == 0
	case dto.MetricType_SUMMARY:
		return m.GetSummary().GetSampleCount() == 0
	default:
		return false
	}
}

// compactFamily removes empty metrics from family in place, mirroring
// exposer.cc's compact_family: most label combinations are empty or
// rarely used, and eliding them significantly cuts what is shipped to
// the scraper. At least one metric is always kept, even if empty, so
// the family remains queryable.
func compactFamily(family *dto.MetricFamily) {
	metrics := family.GetMetric()
	kept := metrics[:0]
	for _, m := range metrics {
		if !isMetricEmpty(family.GetType(), m) {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 && len(metrics) > 0 {
		kept = append(kept, metrics[0])
	}
	family.Metric = kept
}
