package scanning

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/gunout/network-scanner/internal/errors"
	"github.com/gunout/network-scanner/internal/scanning/mocks"
)

func TestResolver_Resolve(t *testing.T) {
	t.Run("prefers ipv4 and trims reverse name", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		hosts := mocks.NewMockHostResolver(ctrl)

		hosts.EXPECT().LookupIPAddr(gomock.Any(), "example.test").Return([]net.IPAddr{
			{IP: net.ParseIP("2001:db8::1")},
			{IP: net.ParseIP("192.0.2.10")},
		}, nil)
		hosts.EXPECT().LookupAddr(gomock.Any(), "192.0.2.10").Return([]string{"host.example.test."}, nil)

		r := NewResolver(hosts, newFakeDialer(80), 80, time.Second)
		info := r.Resolve(context.Background(), "example.test")

		assert.Empty(t, info.Error)
		assert.Equal(t, "192.0.2.10", info.IPAddress)
		assert.Equal(t, "host.example.test", info.ReverseDNS)
		assert.True(t, info.IsUp)
	})

	t.Run("falls back to ipv6", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		hosts := mocks.NewMockHostResolver(ctrl)

		hosts.EXPECT().LookupIPAddr(gomock.Any(), "v6.example.test").Return([]net.IPAddr{
			{IP: net.ParseIP("2001:db8::1")},
		}, nil)
		hosts.EXPECT().LookupAddr(gomock.Any(), "2001:db8::1").Return(nil, &net.DNSError{Err: "no such host", IsNotFound: true})

		r := NewResolver(hosts, newFakeDialer(), 80, time.Second)
		info := r.Resolve(context.Background(), "v6.example.test")

		assert.Empty(t, info.Error)
		assert.Equal(t, "2001:db8::1", info.IPAddress)
		assert.Empty(t, info.ReverseDNS)
		assert.False(t, info.IsUp)
	})

	t.Run("ip literal skips forward lookup", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		hosts := mocks.NewMockHostResolver(ctrl)
		hosts.EXPECT().LookupAddr(gomock.Any(), "127.0.0.1").Return([]string{"localhost"}, nil)

		r := NewResolver(hosts, newFakeDialer(80), 80, time.Second)
		info := r.Resolve(context.Background(), "127.0.0.1")

		assert.Equal(t, "127.0.0.1", info.IPAddress)
		assert.Equal(t, "localhost", info.ReverseDNS)
		assert.True(t, info.IsUp)
	})

	t.Run("resolution failure sets only the error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		hosts := mocks.NewMockHostResolver(ctrl)
		hosts.EXPECT().LookupIPAddr(gomock.Any(), "missing.invalid").
			Return(nil, &net.DNSError{Err: "no such host", Name: "missing.invalid", IsNotFound: true})

		r := NewResolver(hosts, newFakeDialer(80), 80, time.Second)
		info, err := r.resolve(context.Background(), "missing.invalid")

		require.Error(t, err)
		assert.Equal(t, errors.CodeResolution, errors.GetCode(err))
		assert.Equal(t, IPInfo{Error: err.Error()}, info)
		assert.Contains(t, info.Error, "missing.invalid")
	})

	t.Run("empty answer is a resolution failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		hosts := mocks.NewMockHostResolver(ctrl)
		hosts.EXPECT().LookupIPAddr(gomock.Any(), "empty.example.test").Return([]net.IPAddr{}, nil)

		r := NewResolver(hosts, newFakeDialer(80), 80, time.Second)
		info := r.Resolve(context.Background(), "empty.example.test")

		assert.True(t, info.Failed())
		assert.Empty(t, info.IPAddress)
		assert.False(t, info.IsUp)
	})
}

func TestResolver_CheckHost(t *testing.T) {
	t.Run("listening port", func(t *testing.T) {
		port := openPort(t)
		r := NewResolver(net.DefaultResolver, &net.Dialer{}, port, time.Second)
		assert.True(t, r.CheckHost(context.Background(), "127.0.0.1"))
	})

	t.Run("closed port", func(t *testing.T) {
		port := closedPort(t)
		r := NewResolver(net.DefaultResolver, &net.Dialer{}, port, time.Second)
		assert.False(t, r.CheckHost(context.Background(), "127.0.0.1"))
	})

	t.Run("liveness timeout", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		dialer := mocks.NewMockDialer(ctrl)
		dialer.EXPECT().DialContext(gomock.Any(), "tcp", "192.0.2.1:80").
			DoAndReturn(func(ctx context.Context, _, _ string) (net.Conn, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})

		r := NewResolver(net.DefaultResolver, dialer, 80, 20*time.Millisecond)
		start := time.Now()
		assert.False(t, r.CheckHost(context.Background(), "192.0.2.1"))
		assert.Less(t, time.Since(start), time.Second)
	})
}
