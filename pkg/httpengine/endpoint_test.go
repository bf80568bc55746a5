package httpengine

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/pewpewgo/pkg/channel"
	"github.com/grafana/pewpewgo/pkg/config"
	"github.com/grafana/pewpewgo/pkg/provider"
	"github.com/grafana/pewpewgo/pkg/query"
	"github.com/grafana/pewpewgo/pkg/scheduler"
	"github.com/grafana/pewpewgo/pkg/stats"
)

// fixedTicks is a TickSource that fires n times then ends, used so a test
// doesn't depend on a real load-pattern clock.
type fixedTicks struct {
	remaining int32
}

func (f *fixedTicks) Next(ctx context.Context) (bool, error) {
	if atomic.AddInt32(&f.remaining, -1) < 0 {
		return false, nil
	}
	return true, nil
}

func TestEndpointRunEmitsStatsAndDispatchesProvides(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rt := testRuntime(t)

	seenProv := provider.NewResponse("seen", provider.ResponseConfig{BufferSize: 8})

	providesQuery, err := query.Compile("provides", query.Simple("response.status", nil, nil))
	require.NoError(t, err)

	var buf bytes.Buffer
	agg := stats.NewAggregator(time.Second, stats.NewNDJSONWriter(&buf))
	go agg.Run(context.Background())
	defer agg.Close()

	deps := Deps{
		Client:    NewClient(2*time.Second, 2*time.Second, 0),
		Runtime:   rt,
		Providers: map[string]*provider.Provider{"seen": seenProv},
		Stats:     agg,
		Logger:    log.NewNopLogger(),
	}

	ep := &config.ResolvedEndpoint{
		Method: "GET",
		URL:    compileRegular(t, srv.URL+"/ping"),
		Provides: map[string]config.ResolvedProvide{
			"seen": {Query: providesQuery, Send: provider.AutoReturnBlock},
		},
	}

	endpoint := NewEndpoint(0, ep, nil, deps, &fixedTicks{remaining: 3})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = endpoint.Run(ctx)
	assert.NoError(t, err)

	// Give the fire-and-forget attempt goroutines a moment to finish.
	time.Sleep(200 * time.Millisecond)
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&hits)), 1)

	v, recvErr := seenProv.Receiver().Recv(context.Background())
	require.NoError(t, recvErr)
	n, ok := v.Int()
	require.True(t, ok)
	assert.Equal(t, int64(200), n)
}

// TestEndpointOnDemandFiresOnlyWhenDownstreamDrains exercises an on_demand
// endpoint: it must produce exactly as many values as a downstream consumer
// drains, firing again only once the destination provider empties out.
func TestEndpointOnDemandFiresOnlyWhenDownstreamDrains(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rt := testRuntime(t)
	seenProv := provider.NewResponse("seen", provider.ResponseConfig{BufferSize: 1})

	providesQuery, err := query.Compile("provides", query.Simple("response.status", nil, nil))
	require.NoError(t, err)

	var buf bytes.Buffer
	agg := stats.NewAggregator(time.Second, stats.NewNDJSONWriter(&buf))
	go agg.Run(context.Background())
	defer agg.Close()

	deps := Deps{
		Client:    NewClient(2*time.Second, 2*time.Second, 0),
		Runtime:   rt,
		Providers: map[string]*provider.Provider{"seen": seenProv},
		Stats:     agg,
		Logger:    log.NewNopLogger(),
	}

	ep := &config.ResolvedEndpoint{
		Method: "GET",
		URL:    compileRegular(t, srv.URL+"/ping"),
		Provides: map[string]config.ResolvedProvide{
			"seen": {Query: providesQuery, Send: provider.AutoReturnBlock},
		},
	}

	od := channel.NewOnDemand(seenProv.Receiver())
	tick := scheduler.NewOnDemandTickSource(od)
	endpoint := NewEndpoint(0, ep, nil, deps, tick).WithOnDemand(od)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- endpoint.Run(ctx) }()

	const draws = 3
	for i := 0; i < draws; i++ {
		v, recvErr := seenProv.Receiver().Recv(ctx)
		require.NoError(t, recvErr)
		n, ok := v.Int()
		require.True(t, ok)
		assert.Equal(t, int64(200), n)
	}

	cancel()
	<-runDone
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&hits)), draws)
}

func TestRequiredProviderNamesCollectsFromAllTemplateFields(t *testing.T) {
	ep := &config.ResolvedEndpoint{
		URL: compileRegular(t, "http://example.com/${p:ids}"),
		Headers: []config.ResolvedHeader{
			{Name: "X-Other", Template: compileRegular(t, "${p:token}")},
		},
	}
	names := requiredProviderNames(ep)
	assert.ElementsMatch(t, []string{"ids", "token"}, names)
}
