package httpengine

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockRoundTripper func(r *http.Request) *http.Response

func (f MockRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r), nil
}

func TestClientDoUsesInjectedTransport(t *testing.T) {
	mock := MockRoundTripper(func(req *http.Request) *http.Response {
		assert.Equal(t, "/ping", req.URL.Path)
		return &http.Response{
			StatusCode: 200,
			Body:       io.NopCloser(bytes.NewReader([]byte("pong"))),
			Header:     http.Header{},
		}
	})

	client := NewClient(time.Second, time.Second, 0)
	client.WithTransport(mock)

	req, err := http.NewRequest(http.MethodGet, "http://example.com/ping", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestClientWrapsHedgedTransportWhenDelaySet(t *testing.T) {
	client := NewClient(time.Second, time.Second, 10*time.Millisecond)
	assert.NotNil(t, client.http.Transport)
}
