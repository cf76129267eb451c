package scanning

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

// fakeDialer answers connects from an in-memory table of open ports. It
// records the highest number of concurrent dials.
type fakeDialer struct {
	open     map[int]bool
	errs     map[int]error
	maxDelay time.Duration

	inFlight atomic.Int64
	maxSeen  atomic.Int64
	calls    atomic.Int64

	mu  sync.Mutex
	rnd *rand.Rand
}

func newFakeDialer(open ...int) *fakeDialer {
	d := &fakeDialer{
		open: make(map[int]bool),
		errs: make(map[int]error),
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, port := range open {
		d.open[port] = true
	}
	return d
}

func (d *fakeDialer) delay() time.Duration {
	if d.maxDelay <= 0 {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Duration(d.rnd.Int63n(int64(d.maxDelay)))
}

func (d *fakeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.calls.Add(1)
	current := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		seen := d.maxSeen.Load()
		if current <= seen || d.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}

	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}

	select {
	case <-time.After(d.delay()):
	case <-ctx.Done():
		return nil, &net.OpError{Op: "dial", Net: network, Err: ctx.Err()}
	}

	if err, ok := d.errs[port]; ok {
		return nil, err
	}
	if d.open[port] {
		client, server := net.Pipe()
		_ = server.Close()
		return client, nil
	}
	return nil, refusedError()
}

func refusedError() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
}

// closedPort returns a local TCP port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// openPort starts a local TCP listener that accepts and closes connections.
func openPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

// startDNSServer runs an in-process DNS server on UDP and TCP answering from
// zone, keyed by query type. Names absent from zone get NXDOMAIN. UDP answers
// are truncated to the size the client advertised, as a real server would.
func startDNSServer(t *testing.T, zone map[uint16][]dns.RR) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	ln, err := net.Listen("tcp", pc.LocalAddr().String())
	require.NoError(t, err)

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		resp := new(dns.Msg)
		resp.SetReply(req)
		q := req.Question[0]

		for _, rr := range zone[q.Qtype] {
			if rr.Header().Name == q.Name {
				resp.Answer = append(resp.Answer, rr)
			}
		}
		if len(resp.Answer) == 0 && !zoneHasName(zone, q.Name) {
			resp.Rcode = dns.RcodeNameError
		}

		if w.RemoteAddr().Network() == "udp" {
			size := dns.MinMsgSize
			if opt := req.IsEdns0(); opt != nil {
				size = int(opt.UDPSize())
				resp.SetEdns0(opt.UDPSize(), false)
			}
			resp.Truncate(size)
		}
		_ = w.WriteMsg(resp)
	})

	for _, server := range []*dns.Server{
		{PacketConn: pc, Handler: handler},
		{Listener: ln, Handler: handler},
	} {
		started := make(chan struct{})
		server.NotifyStartedFunc = func() { close(started) }
		go func() { _ = server.ActivateAndServe() }()

		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatal("DNS test server did not start")
		}
		t.Cleanup(func() { _ = server.Shutdown() })
	}

	return pc.LocalAddr().String()
}

// largeTXTZone returns example.test with count TXT records of about 100 bytes each.
func largeTXTZone(t *testing.T, count int) (map[uint16][]dns.RR, []string) {
	zone := exampleZone(t, true)
	zone[dns.TypeTXT] = nil

	values := make([]string, 0, count)
	for i := 0; i < count; i++ {
		value := fmt.Sprintf("site-verification=%02d%s", i, strings.Repeat("x", 80))
		values = append(values, value)
		zone[dns.TypeTXT] = append(zone[dns.TypeTXT], mustRR(t, fmt.Sprintf(`example.test. 300 IN TXT "%s"`, value)))
	}
	return zone, values
}

func zoneHasName(zone map[uint16][]dns.RR, name string) bool {
	for _, records := range zone {
		for _, rr := range records {
			if rr.Header().Name == name {
				return true
			}
		}
	}
	return false
}

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	require.NoError(t, err)
	return rr
}

// exampleZone returns records for example.test with an MX entry unless
// withMX is false.
func exampleZone(t *testing.T, withMX bool) map[uint16][]dns.RR {
	zone := map[uint16][]dns.RR{
		dns.TypeA:   {mustRR(t, "example.test. 300 IN A 93.184.216.34")},
		dns.TypeNS:  {mustRR(t, "example.test. 300 IN NS ns1.example.test."), mustRR(t, "example.test. 300 IN NS ns2.example.test.")},
		dns.TypeTXT: {mustRR(t, `example.test. 300 IN TXT "v=spf1 " "-all"`)},
	}
	if withMX {
		zone[dns.TypeMX] = []dns.RR{mustRR(t, "example.test. 300 IN MX 10 mail.example.test.")}
	}
	return zone
}

// deadDNSServer returns an address where no DNS server listens.
func deadDNSServer(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().String()
	require.NoError(t, pc.Close())
	return addr
}
