// Package httpengine implements the per-endpoint request pipeline: draw
// provider values, build an HTTP request, send it, decode the response,
// dispatch provides/logs, and emit stats — a state machine running
// Idle→Tick→Drawing→Building→InFlight→Decoding→Dispatching→Idle.
package httpengine

import (
	"net/http"
	"time"

	"github.com/cristalhq/hedgedhttp"
)

// Client wraps a shared *http.Client the way pkg/httpclient wraps one for
// Tempo's query API: a constructor that wires sane transport defaults, and
// a WithTransport hook so request construction is unit-testable against a
// MockRoundTripper instead of a live socket.
type Client struct {
	http *http.Client
}

// NewClient builds a client whose transport pools connections per
// config.client.keepalive and bounds every request to timeout. hedgeDelay,
// when non-zero, wraps the transport with cristalhq/hedgedhttp so a second
// (then third) request fires after hedgeDelay/2*hedgeDelay if the first
// hasn't returned — an additive, off-by-default tail-latency mitigation
// (enabled by the run subcommand's --hedge-delay flag), not required for baseline
// behavior.
func NewClient(timeout, keepalive, hedgeDelay time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     keepalive,
	}

	var rt http.RoundTripper = transport
	if hedgeDelay > 0 {
		hedged, _ := hedgedhttp.NewRoundTripper(hedgeDelay, 3, transport)
		rt = hedged
	}

	return &Client{http: &http.Client{Transport: rt, Timeout: timeout}}
}

// WithTransport swaps the underlying RoundTripper, used by tests to inject
// a MockRoundTripper the same way pkg/httpclient/client_test.go does.
func (c *Client) WithTransport(rt http.RoundTripper) *Client {
	c.http.Transport = rt
	return c
}

// Do issues req through the wrapped client.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}
