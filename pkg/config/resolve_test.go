package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
	"github.com/grafana/pewpewgo/pkg/provider"
	"github.com/grafana/pewpewgo/pkg/scheduler"
)

func TestResolveLoadPatternDefaultsFromPreviousTo(t *testing.T) {
	doc := `
- !linear {to: 50%, over: 10s}
- !linear {to: 100%, over: 20s}
`
	var raw RawLoadPattern
	require.NoError(t, yaml.Unmarshal([]byte(doc), &raw))

	pieces, err := resolveLoadPattern(raw)
	require.NoError(t, err)
	require.Len(t, pieces, 2)
	assert.Equal(t, scheduler.LinearPiece{StartPercent: 0, EndPercent: 0.5, Duration: 10 * time.Second}, pieces[0])
	assert.Equal(t, scheduler.LinearPiece{StartPercent: 0.5, EndPercent: 1.0, Duration: 20 * time.Second}, pieces[1])
}

func TestResolveLoadPatternEmpty(t *testing.T) {
	pieces, err := resolveLoadPattern(nil)
	require.NoError(t, err)
	assert.Nil(t, pieces)
}

func TestResolveClientAndGeneralDefaults(t *testing.T) {
	lookup := VarLookup(map[string]jsonvalue.Value{})

	var rawClient RawClient
	require.NoError(t, yaml.Unmarshal([]byte(`{}`), &rawClient))
	client, err := resolveClient(rawClient, lookup)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, client.RequestTimeout)
	assert.Equal(t, 90*time.Second, client.Keepalive)

	var rawGeneral RawGeneral
	require.NoError(t, yaml.Unmarshal([]byte(`{}`), &rawGeneral))
	general, err := resolveGeneral(rawGeneral, lookup)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, general.BucketSize)
	assert.True(t, general.LogProviderStats)
	assert.Equal(t, uint64(5), general.AutoBufferStartSize)
}

func TestResolveClientUsesVarInterpolation(t *testing.T) {
	lookup := VarLookup(map[string]jsonvalue.Value{"timeout": jsonvalue.String("15s")})
	var rawClient RawClient
	require.NoError(t, yaml.Unmarshal([]byte(`request_timeout: "${v:timeout}"`), &rawClient))

	client, err := resolveClient(rawClient, lookup)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, client.RequestTimeout)
}

func TestResolveFileProviderLineFormat(t *testing.T) {
	lookup := VarLookup(map[string]jsonvalue.Value{})
	var rp RawProvider
	require.NoError(t, yaml.Unmarshal([]byte(`!file {path: "./words.txt", repeat: true}`), &rp))

	resolved, err := resolveProvider(rp, lookup)
	require.NoError(t, err)
	assert.Equal(t, ProviderKindFile, resolved.Kind)
	assert.Equal(t, "line", resolved.FileFmt)
	assert.Equal(t, "./words.txt", resolved.FileLine.Path)
	assert.True(t, resolved.FileLine.Repeat)
	assert.Equal(t, 0, resolved.FileLine.BufferSize)
}

func TestResolveFileProviderCSVFormat(t *testing.T) {
	lookup := VarLookup(map[string]jsonvalue.Value{})
	doc := `!file
path: "./data.csv"
format: csv
csv:
  headers: true
  comment: "#"
`
	var rp RawProvider
	require.NoError(t, yaml.Unmarshal([]byte(doc), &rp))

	resolved, err := resolveProvider(rp, lookup)
	require.NoError(t, err)
	assert.Equal(t, "csv", resolved.FileFmt)
	assert.True(t, resolved.FileCSV.Headers)
	assert.Equal(t, '#', resolved.FileCSV.Comment)
}

func TestResolveFileProviderUnknownFormat(t *testing.T) {
	lookup := VarLookup(map[string]jsonvalue.Value{})
	var rp RawProvider
	require.NoError(t, yaml.Unmarshal([]byte(`!file {path: "x", format: xml}`), &rp))

	_, err := resolveProvider(rp, lookup)
	assert.Error(t, err)
}

func TestResolveListProvider(t *testing.T) {
	lookup := VarLookup(map[string]jsonvalue.Value{})
	var rp RawProvider
	require.NoError(t, yaml.Unmarshal([]byte(`!list [1, 2, 3]`), &rp))

	resolved, err := resolveProvider(rp, lookup)
	require.NoError(t, err)
	assert.Equal(t, ProviderKindList, resolved.Kind)
	require.Len(t, resolved.List.Values, 3)
	assert.Equal(t, jsonvalue.Int(1), resolved.List.Values[0])
}

func TestResolveRangeProvider(t *testing.T) {
	lookup := VarLookup(map[string]jsonvalue.Value{})
	var rp RawProvider
	require.NoError(t, yaml.Unmarshal([]byte(`!range {start: 1, end: 5, step: 2}`), &rp))

	resolved, err := resolveProvider(rp, lookup)
	require.NoError(t, err)
	assert.Equal(t, provider.RangeConfig{Start: 1, End: 5, Step: 2}, resolved.Range)
}

func TestResolveAutoReturnMapping(t *testing.T) {
	forceTag := ProviderSendForce
	assert.Equal(t, provider.AutoReturnForce, resolveAutoReturn(&forceTag))
	assert.Equal(t, provider.AutoReturnNone, resolveAutoReturn(nil))

	blockTag := ProviderSendBlock
	assert.Equal(t, provider.AutoReturnBlock, resolveAutoReturn(&blockTag))
}

func TestResolveEndpointBasic(t *testing.T) {
	lookup := VarLookup(map[string]jsonvalue.Value{})
	doc := `
url: "http://example.com/path"
method: post
`
	var e RawEndpoint
	require.NoError(t, yaml.Unmarshal([]byte(doc), &e))

	resolved, err := resolveEndpoint(e, lookup, 0)
	require.NoError(t, err)
	assert.Equal(t, "POST", resolved.Method)
	lit, ok := resolved.URL.IsLiteral()
	require.True(t, ok)
	assert.Equal(t, "http://example.com/path", lit)
}

func TestResolveEndpointInsertsSpecialTags(t *testing.T) {
	lookup := VarLookup(map[string]jsonvalue.Value{})
	var e RawEndpoint
	require.NoError(t, yaml.Unmarshal([]byte(`url: "http://example.com"`), &e))

	resolved, err := resolveEndpoint(e, lookup, 7)
	require.NoError(t, err)
	resolved.insertSpecialTags(7)

	idLit, ok := resolved.Tags["_id"].IsLiteral()
	require.True(t, ok)
	assert.Equal(t, "7", idLit)

	methodLit, ok := resolved.Tags["method"].IsLiteral()
	require.True(t, ok)
	assert.Equal(t, "GET", methodLit)

	urlLit, ok := resolved.Tags["url"].IsLiteral()
	require.True(t, ok)
	assert.Equal(t, "http://example.com", urlLit)
}

func TestResolveEndpointInsertLoadPatternFallsBackToGlobal(t *testing.T) {
	global := []scheduler.LinearPiece{{StartPercent: 0, EndPercent: 1, Duration: time.Minute}}
	e := ResolvedEndpoint{}
	e.insertLoadPattern(global)
	assert.Equal(t, global, e.LoadPattern)
}

func TestBuildQueryConfigFromSelectNode(t *testing.T) {
	doc := `select: "response.body"`
	var q RawQuery
	require.NoError(t, yaml.Unmarshal([]byte(doc), &q))

	cfg, err := buildQueryConfig(q)
	require.NoError(t, err)
	assert.Equal(t, jsonvalue.String("response.body"), cfg.Select)
}
