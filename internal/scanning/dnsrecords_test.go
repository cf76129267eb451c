package scanning

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gunout/network-scanner/internal/errors"
)

func TestDNSFetcher_Fetch(t *testing.T) {
	server := startDNSServer(t, exampleZone(t, true))
	fetcher := NewDNSFetcher(server, 2*time.Second)

	records := fetcher.Fetch(context.Background(), "example.test")

	assert.Empty(t, records.Error)
	assert.Equal(t, []string{"93.184.216.34"}, records.Records["A"])
	assert.Equal(t, []string{"mail.example.test."}, records.Records["MX"])
	assert.ElementsMatch(t, []string{"ns1.example.test.", "ns2.example.test."}, records.Records["NS"])
	assert.Equal(t, []string{"v=spf1 -all"}, records.Records["TXT"])
}

func TestDNSFetcher_LargeAnswers(t *testing.T) {
	tests := []struct {
		name  string
		count int
	}{
		{name: "larger than 512 bytes fits EDNS0 buffer", count: 12},
		{name: "larger than EDNS0 buffer falls back to TCP", count: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zone, want := largeTXTZone(t, tt.count)
			fetcher := NewDNSFetcher(startDNSServer(t, zone), 2*time.Second)

			records := fetcher.Fetch(context.Background(), "example.test")

			assert.False(t, records.Failed())
			assert.ElementsMatch(t, want, records.Records["TXT"])
			assert.Equal(t, []string{"93.184.216.34"}, records.Records["A"])
		})
	}
}

func TestDNSFetcher_MissingTypeOmitted(t *testing.T) {
	server := startDNSServer(t, exampleZone(t, false))
	fetcher := NewDNSFetcher(server, 2*time.Second)

	records := fetcher.Fetch(context.Background(), "example.test")

	assert.False(t, records.Failed())
	assert.NotContains(t, records.Records, "MX")
	assert.Contains(t, records.Records, "A")
	assert.Contains(t, records.Records, "NS")
	assert.Contains(t, records.Records, "TXT")
}

func TestDNSFetcher_UnknownName(t *testing.T) {
	server := startDNSServer(t, exampleZone(t, true))
	fetcher := NewDNSFetcher(server, 2*time.Second)

	records := fetcher.Fetch(context.Background(), "nothing.example.test")

	assert.False(t, records.Failed())
	assert.Empty(t, records.Records)
}

func TestDNSFetcher_ResolverUnreachable(t *testing.T) {
	fetcher := NewDNSFetcher(deadDNSServer(t), 300*time.Millisecond)

	records, err := fetcher.fetch(context.Background(), "example.test")

	require.Error(t, err)
	assert.NotEqual(t, errors.CodeUnknown, errors.GetCode(err))
	assert.True(t, records.Failed())
	assert.NotNil(t, records.Records)
	assert.Empty(t, records.Records)
}

func TestDNSFetcher_ServerAddr(t *testing.T) {
	t.Run("explicit server without port", func(t *testing.T) {
		f := NewDNSFetcher("192.0.2.53", time.Second)
		addr, err := f.serverAddr()
		require.NoError(t, err)
		assert.Equal(t, "192.0.2.53:53", addr)
	})

	t.Run("explicit server with port", func(t *testing.T) {
		f := NewDNSFetcher("192.0.2.53:5353", time.Second)
		addr, err := f.serverAddr()
		require.NoError(t, err)
		assert.Equal(t, "192.0.2.53:5353", addr)
	})

	t.Run("bracketed ipv6 without port", func(t *testing.T) {
		f := NewDNSFetcher("[2001:db8::53]", time.Second)
		addr, err := f.serverAddr()
		require.NoError(t, err)
		assert.Equal(t, "[2001:db8::53]:53", addr)
	})

	t.Run("bare ipv6", func(t *testing.T) {
		f := NewDNSFetcher("2001:db8::53", time.Second)
		addr, err := f.serverAddr()
		require.NoError(t, err)
		assert.Equal(t, "[2001:db8::53]:53", addr)
	})

	t.Run("resolv.conf", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "resolv.conf")
		require.NoError(t, os.WriteFile(path, []byte("nameserver 198.51.100.1\nnameserver 198.51.100.2\n"), 0o600))

		f := NewDNSFetcher("", time.Second)
		f.resolvConf = path
		addr, err := f.serverAddr()
		require.NoError(t, err)
		assert.Equal(t, "198.51.100.1:53", addr)
	})

	t.Run("missing resolv.conf", func(t *testing.T) {
		f := NewDNSFetcher("", time.Second)
		f.resolvConf = filepath.Join(t.TempDir(), "missing.conf")

		records, err := f.fetch(context.Background(), "example.test")
		require.Error(t, err)
		assert.Equal(t, errors.CodeConfiguration, errors.GetCode(err))
		assert.True(t, records.Failed())
		assert.Empty(t, records.Records)
	})
}
