package security

import (
	"net"
	"net/http"
	"strings"
	"sync/atomic"
)

// pathFragments flag path or query content probing for other systems'
// entry points. The engine serves JSON under /api only, so any of these
// marks scanner traffic.
var pathFragments = []string{
	"../", "..\\", ".env", "wp-admin", "phpmyadmin",
	"admin.php", "config.php", ".git", ".ssh",
	"eval(", "javascript:", "<script", "union select",
	"etc/passwd", "cmd.exe",
}

// agentFragments match vulnerability scanners and crawlers by
// User-Agent. Plain HTTP clients (curl, scripts) are legitimate API
// consumers and stay unflagged.
var agentFragments = []string{
	"sqlmap", "nmap", "nikto", "gobuster", "dirb",
	"scanner", "crawler", "spider", "scraper",
}

// DetectionMetrics is a snapshot of the detector counters.
type DetectionMetrics struct {
	SuspiciousRequests int64
}

// Detector classifies incoming requests and resolves client addresses
// behind trusted proxies.
type Detector struct {
	suspicious     atomic.Int64
	trustedProxies []*net.IPNet
}

// NewDetector creates a detector trusting loopback and RFC 1918 ranges
// as forwarding proxies.
func NewDetector() *Detector {
	return &Detector{trustedProxies: privateNetworks()}
}

func privateNetworks() []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
	} {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid built-in proxy CIDR: " + cidr)
		}
		nets = append(nets, network)
	}
	return nets
}

// DetectSuspiciousRequest reports whether the request looks like probe
// or scanner traffic and counts it for /metrics. Detection observes
// only; throttling is the rate limiter's job.
func (d *Detector) DetectSuspiciousRequest(r *http.Request) bool {
	suspicious := suspiciousTarget(r) || suspiciousAgent(r) || suspiciousShape(r)
	if suspicious {
		d.suspicious.Add(1)
	}
	return suspicious
}

func suspiciousTarget(r *http.Request) bool {
	path := strings.ToLower(r.URL.Path)
	query := strings.ToLower(r.URL.RawQuery)
	for _, fragment := range pathFragments {
		if strings.Contains(path, fragment) || strings.Contains(query, fragment) {
			return true
		}
	}
	return false
}

func suspiciousAgent(r *http.Request) bool {
	agent := strings.ToLower(r.Header.Get("User-Agent"))
	for _, fragment := range agentFragments {
		if strings.Contains(agent, fragment) {
			return true
		}
	}
	return false
}

func suspiciousShape(r *http.Request) bool {
	switch r.Method {
	case "TRACE", "TRACK", "DEBUG", "CONNECT":
		return true
	}
	if len(r.URL.String()) > 2048 {
		return true
	}
	// Stacked forwarding headers with a long hop chain suggest header
	// manipulation.
	if r.Header.Get("X-Real-IP") != "" {
		if xff := r.Header.Get("X-Forwarded-For"); strings.Count(xff, ",") > 5 {
			return true
		}
	}
	return false
}

// ExtractClientIP resolves the client address, honoring forwarded
// headers only when the direct peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	direct := net.ParseIP(host)
	if direct == nil || !d.trustedProxy(direct) {
		return host
	}

	// The first hop in X-Forwarded-For is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := r.Header.Get("X-Real-IP"); net.ParseIP(xri) != nil {
		return xri
	}
	return host
}

func (d *Detector) trustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// GetMetrics returns a snapshot of the detector counters.
func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{SuspiciousRequests: d.suspicious.Load()}
}
