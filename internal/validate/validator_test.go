package validate

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/proxygrid.net/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}

// proxyFromServer turns an httptest server address into a candidate proxy.
// For plain http targets the transport sends an absolute-URI request to
// the proxy, so any handler returning 200 behaves like a forward proxy.
func proxyFromServer(t *testing.T, srv *httptest.Server) domain.CandidateProxy {
	t.Helper()
	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return domain.CandidateProxy{
		ID:       "proxy-1",
		IP:       host,
		Port:     port,
		Protocol: domain.ProtocolHTTP,
	}
}

func TestValidateWorkingHTTPProxy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"origin":"127.0.0.1"}`)
	}))
	defer srv.Close()

	// No HTTPS target: only the plain HTTP probe runs.
	v := NewValidator(5*time.Second, "http://origin.test/ip", "", nopLogger{})

	outcome := v.Validate(context.Background(), proxyFromServer(t, srv))

	assert.True(t, outcome.Working)
	assert.Equal(t, "proxy-1", outcome.ProxyID)
	assert.Equal(t, domain.CheckedHTTP, outcome.ProtocolChecked)
	assert.False(t, outcome.SupportsHTTPS)
	require.NotNil(t, outcome.LatencyMs)
	assert.GreaterOrEqual(t, *outcome.LatencyMs, int64(0))
	assert.Empty(t, outcome.Error)
	assert.False(t, outcome.CheckedAt.IsZero())
}

func TestValidateRejectsUntunneledProxy(t *testing.T) {
	// The "proxy" returns 200 but the echoed origin is some other
	// machine: the request never actually went through it.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"origin":"203.0.113.77"}`)
	}))
	defer srv.Close()

	v := NewValidator(5*time.Second, "http://origin.test/ip", "", nopLogger{})

	outcome := v.Validate(context.Background(), proxyFromServer(t, srv))

	assert.False(t, outcome.Working)
	assert.Nil(t, outcome.LatencyMs)
	assert.Equal(t, domain.ErrorKindProtocolError, outcome.ErrorKind)
	assert.Contains(t, outcome.Error, "did not tunnel")
}

func TestValidateAcceptsNonEchoBody(t *testing.T) {
	// A target that is not an ip-echo service passes on status alone.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>ok</html>")
	}))
	defer srv.Close()

	v := NewValidator(5*time.Second, "http://origin.test/ip", "", nopLogger{})

	outcome := v.Validate(context.Background(), proxyFromServer(t, srv))

	assert.True(t, outcome.Working)
	assert.Empty(t, outcome.Error)
}

func TestValidateBadStatusIsProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	v := NewValidator(5*time.Second, "http://origin.test/ip", "", nopLogger{})

	outcome := v.Validate(context.Background(), proxyFromServer(t, srv))

	assert.False(t, outcome.Working)
	assert.Nil(t, outcome.LatencyMs)
	assert.Equal(t, domain.ErrorKindProtocolError, outcome.ErrorKind)
}

func TestValidateConnectionRefused(t *testing.T) {
	// Grab a port that nothing listens on.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, _ := strconv.Atoi(portStr)

	v := NewValidator(5*time.Second, "http://origin.test/ip", "", nopLogger{})

	outcome := v.Validate(context.Background(), domain.CandidateProxy{
		ID:       "proxy-dead",
		IP:       host,
		Port:     port,
		Protocol: domain.ProtocolHTTP,
	})

	assert.False(t, outcome.Working)
	assert.Equal(t, domain.ErrorKindConnectionRefused, outcome.ErrorKind)
	assert.NotEmpty(t, outcome.Error)
}

func TestValidateSlowProxyTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	v := NewValidator(50*time.Millisecond, "http://origin.test/ip", "", nopLogger{})

	outcome := v.Validate(context.Background(), proxyFromServer(t, srv))

	assert.False(t, outcome.Working)
	assert.Equal(t, domain.ErrorKindTimeout, outcome.ErrorKind)
}

func TestValidateSocks4Unsupported(t *testing.T) {
	v := NewValidator(time.Second, "http://origin.test/ip", "", nopLogger{})

	outcome := v.Validate(context.Background(), domain.CandidateProxy{
		ID:       "proxy-s4",
		IP:       "10.0.0.1",
		Port:     1080,
		Protocol: domain.ProtocolSOCKS4,
	})

	assert.False(t, outcome.Working)
	assert.Equal(t, domain.ErrorKindProtocolError, outcome.ErrorKind)
	assert.Contains(t, outcome.Error, "socks4")
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"deadline", context.DeadlineExceeded, domain.ErrorKindTimeout},
		{"refused errno", syscall.ECONNREFUSED, domain.ErrorKindConnectionRefused},
		{"refused text", fmt.Errorf("dial tcp 10.0.0.1:8080: connect: connection refused"), domain.ErrorKindConnectionRefused},
		{"malformed", fmt.Errorf("malformed HTTP response"), domain.ErrorKindProtocolError},
		{"bad status", fmt.Errorf("received non-successful status code: 502"), domain.ErrorKindProtocolError},
		{"socks reply", fmt.Errorf("socks connect tcp: unknown error"), domain.ErrorKindProtocolError},
		{"untunneled", fmt.Errorf("%w: target saw 203.0.113.77", errUntunneledResponse), domain.ErrorKindProtocolError},
		{"other", fmt.Errorf("something odd"), domain.ErrorKindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}
