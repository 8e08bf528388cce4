package domain

import "fmt"

// Protocol represents the protocol family a candidate proxy speaks
type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolHTTPS  Protocol = "https"
	ProtocolSOCKS4 Protocol = "socks4"
	ProtocolSOCKS5 Protocol = "socks5"
)

// CandidateProxy is a proxy candidate fetched from the store. It is
// immutable once created; the core never writes back to it directly.
type CandidateProxy struct {
	ID       string   `json:"id" db:"id"`
	IP       string   `json:"ip" db:"ip"`
	Port     int      `json:"port" db:"port"`
	Protocol Protocol `json:"protocol" db:"protocol"`
	Country  string   `json:"country,omitempty" db:"country"`
}

// Addr returns the host:port form used for dialing and as cache member key.
func (p CandidateProxy) Addr() string {
	return fmt.Sprintf("%s:%d", p.IP, p.Port)
}

// WorkingProxy is the read model served to the rotating-proxy consumer:
// a validated proxy plus its last measured latency.
type WorkingProxy struct {
	ID        string   `json:"id" db:"id"`
	IP        string   `json:"ip" db:"ip"`
	Port      int      `json:"port" db:"port"`
	Protocol  Protocol `json:"protocol" db:"protocol"`
	LatencyMs int64    `json:"latency_ms" db:"response_time_ms"`
}

// Addr returns the host:port form of the working proxy.
func (p WorkingProxy) Addr() string {
	return fmt.Sprintf("%s:%d", p.IP, p.Port)
}

// CandidateFilter narrows which proxies are fetched for validation.
// Zero values mean "no constraint".
type CandidateFilter struct {
	Status     string
	Protocol   Protocol
	Country    string
	AgeMinutes int // only proxies not checked within this window (or never)
}
