package proxy

import (
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"h12.io/socks"
)

// Pool is the set of proxy endpoints available for rotation. It is built once
// at startup and never mutated afterwards.
type Pool struct {
	proxies []string
}

func NewPool(proxies []string) *Pool {
	cleaned := make([]string, 0, len(proxies))
	for _, p := range proxies {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return &Pool{proxies: cleaned}
}

func (p *Pool) Size() int {
	return len(p.proxies)
}

func (p *Pool) Empty() bool {
	return len(p.proxies) == 0
}

// Pick returns a uniformly random proxy URL, or "" when the pool is empty.
func (p *Pool) Pick(rng *rand.Rand) string {
	if len(p.proxies) == 0 {
		return ""
	}
	return p.proxies[rng.Intn(len(p.proxies))]
}

func (p *Pool) List() []string {
	out := make([]string, len(p.proxies))
	copy(out, p.proxies)
	return out
}

// Transport builds an http.Transport routed through the given proxy URL.
// Supported schemes: http, https, socks4, socks4a, socks5. An empty proxyURL
// yields a direct transport.
func Transport(proxyURL string) (*http.Transport, error) {
	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if proxyURL == "" {
		return transport, nil
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
	}

	switch parsed.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsed)
	case "socks4", "socks4a", "socks5":
		transport.Dial = socks.Dial(proxyURL)
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q in %q", parsed.Scheme, proxyURL)
	}

	return transport, nil
}
