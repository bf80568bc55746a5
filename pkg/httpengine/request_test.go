package httpengine

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/pewpewgo/pkg/config"
	"github.com/grafana/pewpewgo/pkg/jsonvalue"
	"github.com/grafana/pewpewgo/pkg/query"
)

func TestBuildRequestRendersURLHeadersAndStringBody(t *testing.T) {
	rt := testRuntime(t)
	ep := &config.ResolvedEndpoint{
		Method: http.MethodPost,
		URL:    compileRegular(t, "http://example.com/items"),
		Headers: []config.ResolvedHeader{
			{Name: "X-Trace", Template: compileRegular(t, "abc123")},
		},
		Body: &config.ResolvedBody{
			Kind: config.EndpointBodyStr,
			Str:  compileRegular(t, `{"ok":true}`),
		},
	}
	clientHeaders := []config.ResolvedHeader{
		{Name: "Authorization", Template: compileRegular(t, "Bearer xyz")},
	}

	built, err := buildRequest(context.Background(), rt, ep, clientHeaders, nil)
	require.NoError(t, err)

	assert.Equal(t, "http://example.com/items", built.http.URL.String())
	assert.Equal(t, "POST", built.http.Method)
	assert.Equal(t, "abc123", built.http.Header.Get("X-Trace"))
	assert.Equal(t, "Bearer xyz", built.http.Header.Get("Authorization"))

	m, keys, ok := built.obj.Object()
	require.True(t, ok)
	assert.Contains(t, keys, "method")
	assert.Equal(t, jsonvalue.String("POST"), m["method"])
	assert.Equal(t, jsonvalue.String(`{"ok":true}`), m["body"])
}

func TestBuildRequestMultipartBody(t *testing.T) {
	rt := testRuntime(t)
	ep := &config.ResolvedEndpoint{
		Method: http.MethodPost,
		URL:    compileRegular(t, "http://example.com/upload"),
		Body: &config.ResolvedBody{
			Kind: config.EndpointBodyMultipart,
			Multipart: []config.ResolvedMultipartSection{
				{
					Name: "field1",
					Headers: []config.ResolvedHeader{
						{Name: "Content-Disposition", Template: compileRegular(t, `form-data; name="field1"`)},
					},
					Body: &config.ResolvedBody{Kind: config.EndpointBodyStr, Str: compileRegular(t, "value1")},
				},
			},
		},
	}

	built, err := buildRequest(context.Background(), rt, ep, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, built.http.Header.Get("Content-Type"), "multipart/form-data")
}

func TestBuildRequestHeadersAllKeepsEveryValue(t *testing.T) {
	rt := testRuntime(t)
	ep := &config.ResolvedEndpoint{
		Method: http.MethodGet,
		URL:    compileRegular(t, "http://example.com/items"),
		Headers: []config.ResolvedHeader{
			{Name: "X-Tag", Template: compileRegular(t, "b")},
		},
	}
	clientHeaders := []config.ResolvedHeader{
		{Name: "X-Tag", Template: compileRegular(t, "a")},
	}

	built, err := buildRequest(context.Background(), rt, ep, clientHeaders, nil)
	require.NoError(t, err)

	m, _, ok := built.obj.Object()
	require.True(t, ok)

	headersObj, _, ok := m["headers"].Object()
	require.True(t, ok)
	single, ok := headersObj["X-Tag"].String()
	require.True(t, ok)
	assert.Equal(t, "b", single)

	allObj, _, ok := m["headers_all"].Object()
	require.True(t, ok)
	all, ok := allObj["X-Tag"].List()
	require.True(t, ok)
	require.Len(t, all, 2)
	v0, _ := all[0].String()
	v1, _ := all[1].String()
	assert.Equal(t, "a", v0)
	assert.Equal(t, "b", v1)
}

func TestRequiredCapabilitiesUnionsDeclareProvidesLogs(t *testing.T) {
	declareQ, err := query.Compile("d", query.Simple("response.body", nil, nil))
	require.NoError(t, err)
	providesQ, err := query.Compile("p", query.Simple("response.status", nil, nil))
	require.NoError(t, err)

	ep := &config.ResolvedEndpoint{
		Declare:  map[string]*query.Query{"d": declareQ},
		Provides: map[string]config.ResolvedProvide{"p": {Query: providesQ}},
	}

	caps := requiredCapabilities(ep)
	assert.True(t, caps.Has(query.ResponseBody))
	assert.True(t, caps.Has(query.ResponseStatus))
}
