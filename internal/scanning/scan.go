package scanning

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gunout/network-scanner/internal/errors"
	"github.com/gunout/network-scanner/internal/logging"
	"github.com/gunout/network-scanner/internal/metrics"
)

// Probe names used in logs and metrics.
const (
	probeResolver = "resolver"
	probeDNS      = "dns"
	probeHTTP     = "http"
	probePorts    = "ports"
)

// Scan status labels.
const (
	statusSuccess  = "success"
	statusPartial  = "partial"
	statusRejected = "rejected"
)

// Scanner runs the resolver, DNS, HTTP and port probes against one target
// and merges their sections into a ScanReport. A Scanner holds no state
// between scans and may be used concurrently.
type Scanner struct {
	config    Config
	hosts     HostResolver
	dialer    Dialer
	transport http.RoundTripper
	metrics   *metrics.PrometheusMetrics
	logger    *logging.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithHostResolver sets the resolver used for forward and reverse lookups.
func WithHostResolver(hosts HostResolver) Option {
	return func(s *Scanner) { s.hosts = hosts }
}

// WithDialer sets the dialer used by the liveness check and the port probes.
func WithDialer(dialer Dialer) Option {
	return func(s *Scanner) { s.dialer = dialer }
}

// WithHTTPTransport sets the round tripper used by the HTTP probe.
func WithHTTPTransport(transport http.RoundTripper) Option {
	return func(s *Scanner) { s.transport = transport }
}

// WithMetrics sets the metrics collector. Defaults to the global collector; a
// nil collector disables scan metrics.
func WithMetrics(m *metrics.PrometheusMetrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Scanner) { s.logger = logger }
}

// NewScanner validates cfg and creates a Scanner.
func NewScanner(cfg Config, opts ...Option) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scanner{
		config:  cfg,
		hosts:   net.DefaultResolver,
		dialer:  &net.Dialer{},
		metrics: metrics.GetGlobalMetrics(),
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Scan is a convenience wrapper that scans raw with the default configuration
// and a background context.
func Scan(raw string) (*ScanReport, error) {
	scanner, err := NewScanner(DefaultConfig())
	if err != nil {
		return nil, err
	}
	return scanner.Scan(context.Background(), raw)
}

// Scan validates raw, runs every probe and returns the merged report. Only an
// invalid target returns an error; probe failures are recorded in the
// report sections.
func (s *Scanner) Scan(ctx context.Context, raw string) (*ScanReport, error) {
	start := time.Now()

	target, err := NewScanTarget(raw)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementScansTotal(statusRejected)
		}
		s.logger.ErrorScan("Scan target rejected", raw, err)
		return nil, err
	}

	if s.config.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ScanTimeout)
		defer cancel()
	}

	report := &ScanReport{
		ScanID:    uuid.NewString(),
		URL:       target.URL,
		Timestamp: start,
	}
	logger := s.logger.WithScanID(report.ScanID).WithTarget(target.Host)
	logger.Info("Starting scan", "url", target.URL, "ports", len(s.config.Ports))

	resolver := NewResolver(s.hosts, s.dialer, s.config.LivenessPort, s.config.LivenessTimeout)
	resolver.logger = logger.WithComponent(probeResolver)
	fetcher := NewDNSFetcher(s.config.DNSServer, s.config.DNSTimeout)
	fetcher.logger = logger.WithComponent(probeDNS)
	httpProbe := NewHTTPProbe(s.config.HTTPTimeout, s.config.UserAgent, s.transport)
	httpProbe.logger = logger.WithComponent(probeHTTP)
	portScanner := NewPortScanner(s.dialer, s.config.Concurrency, s.config.ConnectTimeout, s.metrics)
	portScanner.logger = logger.WithComponent(probePorts)

	// Each branch writes only its own report sections.
	var g errgroup.Group
	g.Go(func() error {
		report.IPInfo = runProbe(s, logger, probeResolver, IPInfo{}, func() (IPInfo, error) {
			return resolver.resolve(ctx, target.Host)
		})
		if report.IPInfo.Failed() {
			report.Ports = PortScan{
				Results: map[int]PortResult{},
				Error:   fmt.Sprintf("port scan unavailable: %s", report.IPInfo.Error),
			}
			return nil
		}
		report.Ports = runProbe(s, logger, probePorts, PortScan{}, func() (PortScan, error) {
			return PortScan{Results: portScanner.Scan(ctx, report.IPInfo.IPAddress, s.config.Ports)}, nil
		})
		return nil
	})
	g.Go(func() error {
		report.DNSRecords = runProbe(s, logger, probeDNS, DNSRecords{}, func() (DNSRecords, error) {
			return fetcher.fetch(ctx, target.Host)
		})
		return nil
	})
	g.Go(func() error {
		report.ServerInfo = runProbe(s, logger, probeHTTP, ServerInfo{}, func() (ServerInfo, error) {
			return httpProbe.probe(ctx, target.URL)
		})
		return nil
	})
	_ = g.Wait()

	normalizeReport(report)
	report.Duration = time.Since(start)

	status := statusSuccess
	failed := report.FailedSections()
	if len(failed) > 0 {
		status = statusPartial
	}
	if s.metrics != nil {
		s.metrics.IncrementScansTotal(status)
		s.metrics.RecordScanDuration(report.Duration)
	}

	logger.Info("Scan completed",
		"duration", report.Duration,
		"open_ports", report.Ports.OpenPorts(),
		"failed_sections", failed)

	return report, nil
}

// runProbe times fn, records its failure and converts a panic into a section
// error so that one probe never takes down the scan.
func runProbe[T any](s *Scanner, logger *logging.Logger, probe string, zero T,
	fn func() (T, error)) (section T) {
	start := time.Now()
	probeLogger := logger.WithProbe(probe)

	defer func() {
		if r := recover(); r != nil {
			err := errors.WrapScanError(errors.CodeScanFailed, fmt.Sprintf("%s probe panicked", probe),
				fmt.Errorf("%v", r))
			probeLogger.Error("Probe panicked", "error", err)
			s.recordProbeFailure(probe, errors.CodeScanFailed)
			section = withSectionError(zero, err.Error())
		}
		if s.metrics != nil {
			s.metrics.RecordProbeDuration(probe, time.Since(start))
		}
	}()

	section, err := fn()
	if err != nil {
		logger.WarnProbe("Probe failed", probe, err, "retryable", errors.IsRetryable(err))
		s.recordProbeFailure(probe, errors.GetCode(err))
		return section
	}
	probeLogger.Debug("Probe completed", "duration", time.Since(start))
	return section
}

func (s *Scanner) recordProbeFailure(probe string, code errors.ErrorCode) {
	if s.metrics != nil {
		s.metrics.IncrementProbeFailures(probe, string(code))
	}
}

// withSectionError returns zero with its Error field set.
func withSectionError[T any](zero T, msg string) T {
	switch v := any(&zero).(type) {
	case *IPInfo:
		v.Error = msg
	case *DNSRecords:
		v.Error = msg
	case *ServerInfo:
		v.Error = msg
	case *PortScan:
		v.Error = msg
	}
	return zero
}

// normalizeReport makes sure every section map is non-nil so that reports
// serialize with the same shape whatever failed.
func normalizeReport(report *ScanReport) {
	if report.DNSRecords.Records == nil {
		report.DNSRecords.Records = DNSRecordSet{}
	}
	if report.Ports.Results == nil {
		report.Ports.Results = map[int]PortResult{}
	}
}
