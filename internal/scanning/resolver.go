package scanning

//go:generate mockgen -source=resolver.go -destination=mocks/mock_resolver.go -package=mocks

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gunout/network-scanner/internal/errors"
	"github.com/gunout/network-scanner/internal/logging"
)

// HostResolver performs forward and reverse name lookups. *net.Resolver
// satisfies it.
type HostResolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Resolver turns a host name into an IPInfo section.
type Resolver struct {
	hosts           HostResolver
	dialer          Dialer
	livenessPort    int
	livenessTimeout time.Duration
	logger          *logging.Logger
}

// NewResolver creates a resolver that checks liveness on livenessPort.
func NewResolver(hosts HostResolver, dialer Dialer, livenessPort int, livenessTimeout time.Duration) *Resolver {
	return &Resolver{
		hosts:           hosts,
		dialer:          dialer,
		livenessPort:    livenessPort,
		livenessTimeout: livenessTimeout,
		logger:          logging.Default().WithComponent("resolver"),
	}
}

// Resolve resolves host and fills in reverse DNS and liveness. Only a failed
// forward resolution sets the section error.
func (r *Resolver) Resolve(ctx context.Context, host string) IPInfo {
	info, _ := r.resolve(ctx, host)
	return info
}

func (r *Resolver) resolve(ctx context.Context, host string) (IPInfo, error) {
	ip, err := r.lookupIP(ctx, host)
	if err != nil {
		scanErr := errors.ErrResolution(host, err)
		return IPInfo{Error: scanErr.Error()}, scanErr
	}

	return IPInfo{
		IPAddress:  ip.String(),
		ReverseDNS: r.reverseName(ctx, ip),
		IsUp:       r.CheckHost(ctx, ip.String()),
	}, nil
}

// lookupIP returns the first IPv4 address of host, falling back to the first
// IPv6 address. IP literals are returned as is.
func (r *Resolver) lookupIP(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}

	addrs, err := r.hosts.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses found for %s", host)
	}

	for _, addr := range addrs {
		if v4 := addr.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return addrs[0].IP, nil
}

// reverseName returns the PTR name of ip without its trailing dot. Lookup
// failures are tolerated and yield an empty name.
func (r *Resolver) reverseName(ctx context.Context, ip net.IP) string {
	names, err := r.hosts.LookupAddr(ctx, ip.String())
	if err != nil || len(names) == 0 {
		r.logger.Debug("Reverse lookup returned no name", "ip", ip.String(), "error", err)
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}

// CheckHost reports whether a TCP connection to the liveness port succeeds
// within the liveness timeout.
func (r *Resolver) CheckHost(ctx context.Context, ip string) bool {
	dialCtx, cancel := context.WithTimeout(ctx, r.livenessTimeout)
	defer cancel()

	conn, err := r.dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(ip, strconv.Itoa(r.livenessPort)))
	if err != nil {
		r.logger.Debug("Liveness check failed", "ip", ip, "port", r.livenessPort, "error", err)
		return false
	}
	_ = conn.Close()
	return true
}
