package validate

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	xproxy "golang.org/x/net/proxy"

	"gitlab.com/proxygrid.net/internal/core/ports/primary"
	"gitlab.com/proxygrid.net/internal/domain"
)

// Validator probes candidate proxies against live targets. Each probe
// tunnels a plain HTTP request through the proxy; on success a second
// request checks HTTPS support.
type Validator struct {
	timeout     time.Duration
	httpTarget  string
	httpsTarget string
	logger      primary.Logger
}

func NewValidator(timeout time.Duration, httpTarget, httpsTarget string, logger primary.Logger) *Validator {
	return &Validator{
		timeout:     timeout,
		httpTarget:  httpTarget,
		httpsTarget: httpsTarget,
		logger:      logger,
	}
}

// Validate checks a single proxy and returns its outcome. It never
// returns an error; failures are encoded in the outcome itself.
func (v *Validator) Validate(ctx context.Context, p domain.CandidateProxy) domain.Outcome {
	outcome := domain.Outcome{
		ProxyID:         p.ID,
		ProtocolChecked: domain.CheckedHTTP,
		CheckedAt:       time.Now(),
	}

	if p.Protocol == domain.ProtocolSOCKS4 {
		outcome.Error = "socks4 proxies are not supported"
		outcome.ErrorKind = domain.ErrorKindProtocolError
		return outcome
	}

	client, err := v.newClient(p)
	if err != nil {
		outcome.Error = err.Error()
		outcome.ErrorKind = domain.ErrorKindProtocolError
		return outcome
	}

	start := time.Now()
	if err := v.probe(ctx, client, v.httpTarget, p.IP); err != nil {
		outcome.Error = err.Error()
		outcome.ErrorKind = Classify(err)
		return outcome
	}
	latency := time.Since(start).Milliseconds()

	outcome.Working = true
	outcome.LatencyMs = &latency

	if v.httpsTarget != "" {
		outcome.ProtocolChecked = domain.CheckedBoth
		if err := v.probe(ctx, client, v.httpsTarget, ""); err != nil {
			v.logger.Debug("HTTPS probe failed", "proxyID", p.ID, "error", err)
		} else {
			outcome.SupportsHTTPS = true
		}
	}

	return outcome
}

// newClient builds an HTTP client that routes through the given proxy.
func (v *Validator) newClient(p domain.CandidateProxy) (*http.Client, error) {
	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		TLSHandshakeTimeout: v.timeout,
		DisableKeepAlives:   true,
	}

	switch p.Protocol {
	case domain.ProtocolHTTP, domain.ProtocolHTTPS:
		proxyURL, err := url.Parse(fmt.Sprintf("http://%s", p.Addr()))
		if err != nil {
			return nil, fmt.Errorf("invalid proxy address %q: %w", p.Addr(), err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	case domain.ProtocolSOCKS5:
		dialer, err := xproxy.SOCKS5("tcp", p.Addr(), nil, &net.Dialer{Timeout: v.timeout})
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.DialContext = dialer.(xproxy.ContextDialer).DialContext
	default:
		return nil, fmt.Errorf("unsupported proxy protocol %q", p.Protocol)
	}

	return &http.Client{Transport: transport, Timeout: v.timeout}, nil
}

// errUntunneledResponse marks a proxy that answered with someone else's
// address: the target saw a different client, so traffic never went
// through the proxy.
var errUntunneledResponse = errors.New("proxy did not tunnel the request")

func (v *Validator) probe(ctx context.Context, client *http.Client, target, wantIP string) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("received non-successful status code: %d", resp.StatusCode)
	}
	if wantIP == "" {
		return nil
	}
	return verifyEchoedIP(resp.Body, wantIP)
}

// verifyEchoedIP checks that the address echoed by an ip-echo target
// contains the proxy's own IP. A body that is not JSON (the target may
// not be an echo service) passes on status alone.
func verifyEchoedIP(body io.Reader, wantIP string) error {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return nil
	}

	var echo struct {
		Origin string `json:"origin"`
		IP     string `json:"ip"`
		Query  string `json:"query"`
	}
	if err := json.Unmarshal(raw, &echo); err != nil {
		return nil
	}

	returned := echo.Origin
	if returned == "" {
		returned = echo.IP
	}
	if returned == "" {
		returned = echo.Query
	}
	if returned == "" {
		return nil
	}
	if !strings.Contains(returned, wantIP) {
		return fmt.Errorf("%w: target saw %s", errUntunneledResponse, returned)
	}
	return nil
}

// Classify maps a probe failure to an error kind for aggregation.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrorKindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return domain.ErrorKindConnectionRefused
	}
	if errors.Is(err, errUntunneledResponse) {
		return domain.ErrorKindProtocolError
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return domain.ErrorKindConnectionRefused
	case strings.Contains(msg, "malformed"),
		strings.Contains(msg, "non-successful status code"),
		strings.Contains(msg, "socks"),
		strings.Contains(msg, "unexpected EOF"):
		return domain.ErrorKindProtocolError
	default:
		return domain.ErrorKindUnknown
	}
}
