package scanning

import (
	"fmt"
	"sort"
	"time"

	"github.com/gunout/network-scanner/internal/errors"
)

// Default configuration values.
const (
	DefaultConcurrency     = 15
	DefaultConnectTimeout  = 1 * time.Second
	DefaultLivenessTimeout = 2 * time.Second
	DefaultLivenessPort    = 80
	DefaultHTTPTimeout     = 5 * time.Second
	DefaultDNSTimeout      = 5 * time.Second
	DefaultUserAgent       = "netrecon/1.0"

	maxPort        = 65535
	maxConcurrency = 1024
)

// DefaultPorts is the candidate port list probed when none is configured.
var DefaultPorts = []int{21, 22, 80, 443, 8080, 8443}

// Config represents the configuration for a single-target scan.
type Config struct {
	// Ports lists the TCP ports probed by the port scan engine
	Ports []int
	// Concurrency bounds the number of port probes in flight
	Concurrency int
	// ConnectTimeout is the per-port connect timeout
	ConnectTimeout time.Duration
	// LivenessPort is the port dialed to decide whether the host is up
	LivenessPort int
	// LivenessTimeout is the timeout of the liveness connect
	LivenessTimeout time.Duration
	// HTTPTimeout bounds the HTTP probe including redirects
	HTTPTimeout time.Duration
	// DNSTimeout bounds each DNS record query
	DNSTimeout time.Duration
	// DNSServer is the host:port queried for records; empty means resolv.conf
	DNSServer string
	// UserAgent identifies the HTTP probe
	UserAgent string
	// ScanTimeout bounds the whole scan (0 = no limit)
	ScanTimeout time.Duration
}

// DefaultConfig returns a scan configuration with the default ports and timeouts.
func DefaultConfig() Config {
	ports := make([]int, len(DefaultPorts))
	copy(ports, DefaultPorts)
	return Config{
		Ports:           ports,
		Concurrency:     DefaultConcurrency,
		ConnectTimeout:  DefaultConnectTimeout,
		LivenessPort:    DefaultLivenessPort,
		LivenessTimeout: DefaultLivenessTimeout,
		HTTPTimeout:     DefaultHTTPTimeout,
		DNSTimeout:      DefaultDNSTimeout,
		UserAgent:       DefaultUserAgent,
	}
}

// Validate checks if the scan configuration is valid.
func (c *Config) Validate() error {
	if len(c.Ports) == 0 {
		return errors.NewScanError(errors.CodeValidation, "no ports specified")
	}
	for _, port := range c.Ports {
		if port < 1 || port > maxPort {
			return errors.NewScanError(errors.CodeValidation,
				fmt.Sprintf("invalid port: %d (must be 1-65535)", port))
		}
	}
	if c.Concurrency < 1 || c.Concurrency > maxConcurrency {
		return errors.NewScanError(errors.CodeValidation,
			fmt.Sprintf("invalid concurrency: %d (must be 1-%d)", c.Concurrency, maxConcurrency))
	}
	if c.LivenessPort < 1 || c.LivenessPort > maxPort {
		return errors.NewScanError(errors.CodeValidation,
			fmt.Sprintf("invalid liveness port: %d", c.LivenessPort))
	}
	if c.ConnectTimeout <= 0 || c.LivenessTimeout <= 0 || c.HTTPTimeout <= 0 || c.DNSTimeout <= 0 {
		return errors.NewScanError(errors.CodeValidation, "probe timeouts must be positive")
	}
	if c.ScanTimeout < 0 {
		return errors.NewScanError(errors.CodeValidation, "scan timeout must not be negative")
	}
	return nil
}

// ScanTarget is the normalized form of the user supplied target.
type ScanTarget struct {
	// URL is the scheme-prefixed URL probed over HTTP
	URL string
	// Host is the bare host name or IP literal derived from URL
	Host string
}

// PortStatus is the outcome of a single port probe.
type PortStatus string

const (
	PortOpen   PortStatus = "open"
	PortClosed PortStatus = "closed"
	PortError  PortStatus = "error"
)

// ScanReport is the aggregate result of one scan. Every section is always
// present; a failed probe is recorded in the section's Error field.
type ScanReport struct {
	ScanID     string        `json:"scan_id" yaml:"scan_id"`
	URL        string        `json:"url" yaml:"url"`
	Timestamp  time.Time     `json:"timestamp" yaml:"timestamp"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	IPInfo     IPInfo        `json:"ip_info" yaml:"ip_info"`
	DNSRecords DNSRecords    `json:"dns_records" yaml:"dns_records"`
	ServerInfo ServerInfo    `json:"server_info" yaml:"server_info"`
	Ports      PortScan      `json:"ports" yaml:"ports"`
}

// FailedSections returns the names of the sections whose probe failed.
func (r *ScanReport) FailedSections() []string {
	var failed []string
	if r.IPInfo.Failed() {
		failed = append(failed, "ip_info")
	}
	if r.DNSRecords.Failed() {
		failed = append(failed, "dns_records")
	}
	if r.ServerInfo.Failed() {
		failed = append(failed, "server_info")
	}
	if r.Ports.Failed() {
		failed = append(failed, "ports")
	}
	return failed
}

// IPInfo is the Address Resolver section. When Error is set all other fields
// hold their zero value.
type IPInfo struct {
	IPAddress  string `json:"ip_address,omitempty" yaml:"ip_address,omitempty"`
	ReverseDNS string `json:"reverse_dns,omitempty" yaml:"reverse_dns,omitempty"`
	IsUp       bool   `json:"is_up" yaml:"is_up"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failed reports whether address resolution failed.
func (i IPInfo) Failed() bool { return i.Error != "" }

// DNSRecordSet maps a record type label (A, MX, NS, TXT) to its values.
// Types without answers are omitted.
type DNSRecordSet map[string][]string

// DNSRecords is the DNS Record Fetcher section. Error is only set when the
// resolver could not be used at all, in which case Records is empty.
type DNSRecords struct {
	Records DNSRecordSet `json:"records" yaml:"records"`
	Error   string       `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failed reports whether the whole DNS lookup failed.
func (d DNSRecords) Failed() bool { return d.Error != "" }

// SecurityHeaders holds the security related response headers. A nil field
// means the header was absent.
type SecurityHeaders struct {
	StrictTransportSecurity *string `json:"strict_transport_security" yaml:"strict_transport_security"`
	ContentSecurityPolicy   *string `json:"content_security_policy" yaml:"content_security_policy"`
	XFrameOptions           *string `json:"x_frame_options" yaml:"x_frame_options"`
}

// ServerInfo is the HTTP Probe section.
type ServerInfo struct {
	Server          string           `json:"server,omitempty" yaml:"server,omitempty"`
	ContentType     string           `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	StatusCode      int              `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	FinalURL        string           `json:"final_url,omitempty" yaml:"final_url,omitempty"`
	SecurityHeaders *SecurityHeaders `json:"security_headers,omitempty" yaml:"security_headers,omitempty"`
	Error           string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failed reports whether the HTTP request failed.
func (s ServerInfo) Failed() bool { return s.Error != "" }

// PortResult is the outcome of probing one port. Service is only set for
// open ports whose number appears in the well-known port table.
type PortResult struct {
	Status  PortStatus `json:"status" yaml:"status"`
	Service *string    `json:"service" yaml:"service"`
	Error   string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// PortScan is the Port Scan Engine section. Error is set when the engine
// could not run because no address was resolved.
type PortScan struct {
	Results map[int]PortResult `json:"results" yaml:"results"`
	Error   string             `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failed reports whether the port scan was unavailable.
func (p PortScan) Failed() bool { return p.Error != "" }

// SortedPorts returns the probed port numbers in ascending order.
func (p PortScan) SortedPorts() []int {
	ports := make([]int, 0, len(p.Results))
	for port := range p.Results {
		ports = append(ports, port)
	}
	sort.Ints(ports)
	return ports
}

// OpenPorts returns the open port numbers in ascending order.
func (p PortScan) OpenPorts() []int {
	var open []int
	for _, port := range p.SortedPorts() {
		if p.Results[port].Status == PortOpen {
			open = append(open, port)
		}
	}
	return open
}
