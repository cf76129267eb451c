package scanning

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProbe_Probe(t *testing.T) {
	requests := make(chan *http.Request, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- r.Clone(context.Background())
		w.Header().Set("Server", "nginx/1.25")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000")
		w.Header().Set("X-Frame-Options", "DENY")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	probe := NewHTTPProbe(2*time.Second, "netrecon-test/1.0", nil)
	info := probe.Probe(context.Background(), server.URL)

	assert.Empty(t, info.Error)
	req := <-requests
	assert.Equal(t, http.MethodHead, req.Method)
	assert.Equal(t, "netrecon-test/1.0", req.Header.Get("User-Agent"))
	assert.Equal(t, "nginx/1.25", info.Server)
	assert.Equal(t, "text/html; charset=utf-8", info.ContentType)
	assert.Equal(t, http.StatusOK, info.StatusCode)
	assert.Equal(t, server.URL, info.FinalURL)

	require.NotNil(t, info.SecurityHeaders)
	require.NotNil(t, info.SecurityHeaders.StrictTransportSecurity)
	assert.Equal(t, "max-age=31536000", *info.SecurityHeaders.StrictTransportSecurity)
	require.NotNil(t, info.SecurityHeaders.XFrameOptions)
	assert.Equal(t, "DENY", *info.SecurityHeaders.XFrameOptions)
	assert.Nil(t, info.SecurityHeaders.ContentSecurityPolicy)
}

func TestHTTPProbe_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/landing", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/landing", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	probe := NewHTTPProbe(2*time.Second, DefaultUserAgent, nil)
	info := probe.Probe(context.Background(), server.URL+"/")

	assert.Empty(t, info.Error)
	assert.Equal(t, http.StatusNoContent, info.StatusCode)
	assert.Equal(t, server.URL+"/landing", info.FinalURL)
	require.NotNil(t, info.SecurityHeaders.ContentSecurityPolicy)
	assert.Equal(t, "default-src 'self'", *info.SecurityHeaders.ContentSecurityPolicy)
}

func TestHTTPProbe_NonSuccessStatusIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	info := NewHTTPProbe(2*time.Second, DefaultUserAgent, nil).Probe(context.Background(), server.URL)

	assert.False(t, info.Failed())
	assert.Equal(t, http.StatusServiceUnavailable, info.StatusCode)
}

func TestHTTPProbe_ConnectionRefused(t *testing.T) {
	url := "http://127.0.0.1:" + strconv.Itoa(closedPort(t))

	info, err := NewHTTPProbe(2*time.Second, DefaultUserAgent, nil).probe(context.Background(), url)

	require.Error(t, err)
	assert.True(t, info.Failed())
	assert.Equal(t, ServerInfo{Error: info.Error}, info)
}

func TestHTTPProbe_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	info := NewHTTPProbe(100*time.Millisecond, DefaultUserAgent, nil).Probe(context.Background(), server.URL)

	assert.True(t, info.Failed())
	assert.Less(t, time.Since(start), 2*time.Second)
}
