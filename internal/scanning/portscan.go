package scanning

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gunout/network-scanner/internal/errors"
	"github.com/gunout/network-scanner/internal/logging"
	"github.com/gunout/network-scanner/internal/metrics"
)

// PortScanner probes TCP ports with a connect attempt, keeping at most
// Concurrency probes in flight.
type PortScanner struct {
	dialer         Dialer
	concurrency    int
	connectTimeout time.Duration
	metrics        *metrics.PrometheusMetrics
	logger         *logging.Logger

	// newLimiter is replaced in tests to observe slot usage.
	newLimiter func(capacity int) Limiter
}

// NewPortScanner creates a port scanner. A nil metrics collector disables
// port metrics.
func NewPortScanner(dialer Dialer, concurrency int, connectTimeout time.Duration,
	m *metrics.PrometheusMetrics) *PortScanner {
	return &PortScanner{
		dialer:         dialer,
		concurrency:    concurrency,
		connectTimeout: connectTimeout,
		metrics:        m,
		logger:         logging.Default().WithComponent("ports"),
		newLimiter:     func(capacity int) Limiter { return NewFixedLimiter(capacity) },
	}
}

// Scan probes every port of ip and returns one result per distinct port. It
// returns once every probe has completed.
func (s *PortScanner) Scan(ctx context.Context, ip string, ports []int) map[int]PortResult {
	unique := dedupePorts(ports)
	results := make([]PortResult, len(unique))

	limiter := s.newLimiter(s.concurrency)
	defer func() { _ = limiter.Close() }()

	var wg sync.WaitGroup
	for i, port := range unique {
		if port < 1 || port > maxPort {
			results[i] = PortResult{
				Status: PortError,
				Error:  fmt.Sprintf("invalid port number %d", port),
			}
			continue
		}

		key := strconv.Itoa(port)
		if err := limiter.Acquire(ctx, key); err != nil {
			results[i] = s.errorResult(ip, port, err)
			continue
		}

		wg.Add(1)
		go func(i, port int, key string) {
			defer wg.Done()
			defer limiter.Release(key)
			results[i] = s.probe(ctx, ip, port)
		}(i, port, key)
	}
	wg.Wait()

	out := make(map[int]PortResult, len(unique))
	for i, port := range unique {
		out[port] = results[i]
		if s.metrics != nil {
			s.metrics.IncrementPorts(string(results[i].Status))
		}
	}

	s.logger.Debug("Port scan completed", "ip", ip, "ports", len(out), "peak_in_flight", limiter.Peak())
	return out
}

// probe classifies a single connect attempt. Refused, timed out and
// unreachable connects are reported as closed; anything else is an error.
func (s *PortScanner) probe(ctx context.Context, ip string, port int) PortResult {
	if s.metrics != nil {
		s.metrics.PortProbeStarted()
		defer s.metrics.PortProbeFinished()
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	conn, err := s.dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err == nil {
		_ = conn.Close()
		return PortResult{Status: PortOpen, Service: LookupService(port)}
	}

	if ctx.Err() != nil {
		return s.errorResult(ip, port, ctx.Err())
	}

	switch errors.Classify(err) {
	case errors.CodeConnRefused, errors.CodeTimeout, errors.CodeHostUnreachable:
		return PortResult{Status: PortClosed}
	default:
		return s.errorResult(ip, port, err)
	}
}

func (s *PortScanner) errorResult(ip string, port int, err error) PortResult {
	scanErr := errors.Wrap(fmt.Sprintf("probe of port %d failed", port), ip, err)
	s.logger.WithError(err).Debug("Port probe error", "ip", ip, "port", port, "code", scanErr.Code)
	return PortResult{Status: PortError, Error: scanErr.Error()}
}

// dedupePorts drops repeated port numbers, keeping the first occurrence.
func dedupePorts(ports []int) []int {
	seen := make(map[int]struct{}, len(ports))
	unique := make([]int, 0, len(ports))
	for _, port := range ports {
		if _, dup := seen[port]; dup {
			continue
		}
		seen[port] = struct{}{}
		unique = append(unique, port)
	}
	return unique
}
