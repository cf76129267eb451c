package scanning

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/gunout/network-scanner/internal/errors"
	"github.com/gunout/network-scanner/internal/logging"
)

const (
	defaultResolvConf = "/etc/resolv.conf"
	defaultDNSPort    = "53"

	// ednsBufferSize is the UDP payload size advertised through EDNS0.
	ednsBufferSize = 4096
)

// recordQuery describes one record type fetched for the DNS section.
type recordQuery struct {
	label  string
	qtype  uint16
	format func(dns.RR) (string, bool)
}

var recordQueries = []recordQuery{
	{"A", dns.TypeA, func(rr dns.RR) (string, bool) {
		if a, ok := rr.(*dns.A); ok {
			return a.A.String(), true
		}
		return "", false
	}},
	{"MX", dns.TypeMX, func(rr dns.RR) (string, bool) {
		if mx, ok := rr.(*dns.MX); ok {
			return mx.Mx, true
		}
		return "", false
	}},
	{"NS", dns.TypeNS, func(rr dns.RR) (string, bool) {
		if ns, ok := rr.(*dns.NS); ok {
			return ns.Ns, true
		}
		return "", false
	}},
	{"TXT", dns.TypeTXT, func(rr dns.RR) (string, bool) {
		if txt, ok := rr.(*dns.TXT); ok {
			return strings.Join(txt.Txt, ""), true
		}
		return "", false
	}},
}

// DNSFetcher queries A, MX, NS and TXT records for a domain.
type DNSFetcher struct {
	client     *dns.Client
	tcpClient  *dns.Client
	server     string
	resolvConf string
	logger     *logging.Logger
}

// NewDNSFetcher creates a fetcher that queries server, or the first
// nameserver of /etc/resolv.conf when server is empty.
func NewDNSFetcher(server string, timeout time.Duration) *DNSFetcher {
	return &DNSFetcher{
		client:     &dns.Client{Net: "udp", UDPSize: ednsBufferSize, Timeout: timeout},
		tcpClient:  &dns.Client{Net: "tcp", Timeout: timeout},
		server:     server,
		resolvConf: defaultResolvConf,
		logger:     logging.Default().WithComponent("dns"),
	}
}

// Fetch runs the four record queries concurrently. A query that fails or has
// no answers leaves its type out of the set.
func (f *DNSFetcher) Fetch(ctx context.Context, domain string) DNSRecords {
	records, _ := f.fetch(ctx, domain)
	return records
}

func (f *DNSFetcher) fetch(ctx context.Context, domain string) (DNSRecords, error) {
	server, err := f.serverAddr()
	if err != nil {
		scanErr := errors.WrapScanErrorWithTarget(errors.CodeConfiguration, "no DNS resolver available", domain, err)
		f.logger.Warn("DNS resolver unavailable", "domain", domain, "error", err)
		return DNSRecords{Records: DNSRecordSet{}, Error: scanErr.Error()}, scanErr
	}

	type answer struct {
		values    []string
		transport error
	}
	answers := make([]answer, len(recordQueries))

	var wg sync.WaitGroup
	for i, q := range recordQueries {
		wg.Add(1)
		go func(i int, q recordQuery) {
			defer wg.Done()
			values, transportErr := f.query(ctx, server, domain, q)
			answers[i] = answer{values: values, transport: transportErr}
		}(i, q)
	}
	wg.Wait()

	records := DNSRecordSet{}
	var lastTransportErr error
	transportFailures := 0
	for i, q := range recordQueries {
		if answers[i].transport != nil {
			transportFailures++
			lastTransportErr = answers[i].transport
			continue
		}
		if len(answers[i].values) > 0 {
			records[q.label] = answers[i].values
		}
	}

	if transportFailures == len(recordQueries) {
		scanErr := errors.Wrap("DNS resolver unreachable", domain, lastTransportErr)
		f.logger.Warn("DNS resolver unreachable", "domain", domain, "server", server, "error", lastTransportErr)
		return DNSRecords{Records: DNSRecordSet{}, Error: scanErr.Error()}, scanErr
	}

	return DNSRecords{Records: records}, nil
}

// query performs one lookup. A transport failure is returned as an error; a
// negative answer just yields no values.
func (f *DNSFetcher) query(ctx context.Context, server, domain string, q recordQuery) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), q.qtype)
	msg.RecursionDesired = true
	msg.SetEdns0(ednsBufferSize, false)

	resp, err := f.exchange(ctx, msg, server)
	if err != nil {
		f.logger.Debug("DNS query failed", "domain", domain, "type", q.label, "error", err)
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		f.logger.Debug("DNS query returned no data", "domain", domain, "type", q.label,
			"rcode", dns.RcodeToString[resp.Rcode])
		return nil, nil
	}

	var values []string
	for _, rr := range resp.Answer {
		if value, ok := q.format(rr); ok {
			values = append(values, value)
		}
	}
	return values, nil
}

// exchange sends msg over UDP and repeats it over TCP when the answer was
// truncated or could not be decoded.
func (f *DNSFetcher) exchange(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error) {
	resp, _, err := f.client.ExchangeContext(ctx, msg, server)
	if err == nil && !resp.Truncated {
		return resp, nil
	}

	var netErr net.Error
	if err != nil && (ctx.Err() != nil || stderrors.As(err, &netErr)) {
		return nil, err
	}

	f.logger.Debug("Retrying DNS query over TCP", "server", server,
		"type", dns.TypeToString[msg.Question[0].Qtype], "udp_error", err)
	resp, _, err = f.tcpClient.ExchangeContext(ctx, msg, server)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// serverAddr returns the host:port of the resolver to query.
func (f *DNSFetcher) serverAddr() (string, error) {
	if f.server != "" {
		if _, _, err := net.SplitHostPort(f.server); err == nil {
			return f.server, nil
		}
		host := strings.TrimSuffix(strings.TrimPrefix(f.server, "["), "]")
		return net.JoinHostPort(host, defaultDNSPort), nil
	}

	conf, err := dns.ClientConfigFromFile(f.resolvConf)
	if err != nil {
		return "", err
	}
	if len(conf.Servers) == 0 {
		return "", fmt.Errorf("no nameservers in %s", f.resolvConf)
	}
	port := conf.Port
	if port == "" {
		port = defaultDNSPort
	}
	return net.JoinHostPort(conf.Servers[0], port), nil
}
