package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRawClientDefaults(t *testing.T) {
	var c RawClient
	require.NoError(t, yaml.Unmarshal([]byte(`{}`), &c))
	assert.Equal(t, "60s", c.RequestTimeout.Raw())
	assert.Equal(t, "90s", c.Keepalive.Raw())
}

func TestRawClientOverridesDefaults(t *testing.T) {
	var c RawClient
	require.NoError(t, yaml.Unmarshal([]byte(`request_timeout: 5s`), &c))
	assert.Equal(t, "5s", c.RequestTimeout.Raw())
	assert.Equal(t, "90s", c.Keepalive.Raw())
}

func TestRawGeneralDefaults(t *testing.T) {
	var g RawGeneral
	require.NoError(t, yaml.Unmarshal([]byte(`{}`), &g))
	assert.Equal(t, uint64(5), g.AutoBufferStartSize)
	assert.Equal(t, "60s", g.BucketSize.Raw())
	assert.True(t, g.LogProviderStats)
}

func TestRawLoadPatternRequiresLinearTag(t *testing.T) {
	doc := `- !linear {to: 100%, over: 30s}`
	var lp RawLoadPattern
	require.NoError(t, yaml.Unmarshal([]byte(doc), &lp))
	require.Len(t, lp, 1)
	assert.Equal(t, "100%", lp[0].To)
	assert.Equal(t, "30s", lp[0].Over)
	assert.Nil(t, lp[0].From)
}

func TestRawLoadPatternDefaultFromNil(t *testing.T) {
	doc := `- !linear {from: 10%, to: 100%, over: 30s}`
	var lp RawLoadPattern
	require.NoError(t, yaml.Unmarshal([]byte(doc), &lp))
	require.NotNil(t, lp[0].From)
	assert.Equal(t, "10%", *lp[0].From)
}

func TestRawEndpointDefaultsMethodAndDecodesOrderedLogs(t *testing.T) {
	doc := `
url: http://x
logs:
  second:
    select: "response.body"
  first:
    select: "response.status"
`
	var e RawEndpoint
	require.NoError(t, yaml.Unmarshal([]byte(doc), &e))
	assert.Equal(t, "GET", e.Method)
	require.Len(t, e.Logs, 2)
	assert.Equal(t, "second", e.Logs[0].Name)
	assert.Equal(t, "first", e.Logs[1].Name)
}

func TestProviderSendTagFromYAMLTag(t *testing.T) {
	cases := map[string]ProviderSendTag{
		"!block":       ProviderSendBlock,
		"!force":       ProviderSendForce,
		"!if_not_full": ProviderSendIfNotFull,
	}
	for doc, want := range cases {
		var tag ProviderSendTag
		require.NoError(t, yaml.Unmarshal([]byte(doc), &tag), doc)
		assert.Equal(t, want, tag, doc)
	}
}

func TestRawEndpointProvideInlineQueryPlusSend(t *testing.T) {
	doc := `
select: "response.body"
send: !force
`
	var p RawEndpointProvide
	require.NoError(t, yaml.Unmarshal([]byte(doc), &p))
	assert.Equal(t, ProviderSendForce, p.Send)

	var sel string
	require.NoError(t, p.Select.Decode(&sel))
	assert.Equal(t, "response.body", sel)
}

func TestRawDeclareRejectsCollectsTag(t *testing.T) {
	var d RawDeclare
	err := yaml.Unmarshal([]byte(`!c {}`), &d)
	assert.Error(t, err)
}

func TestRawDeclarePlainExpr(t *testing.T) {
	var d RawDeclare
	require.NoError(t, yaml.Unmarshal([]byte(`"1 + 1"`), &d))
	assert.Equal(t, "1 + 1", d.Expr)
}

func TestRawEndpointBodyVariants(t *testing.T) {
	var str RawEndpointBody
	require.NoError(t, yaml.Unmarshal([]byte(`!str "hello"`), &str))
	assert.Equal(t, EndpointBodyStr, str.Kind)
	assert.Equal(t, "hello", str.Str.Raw())

	var file RawEndpointBody
	require.NoError(t, yaml.Unmarshal([]byte(`"./payload.json"`), &file))
	assert.Equal(t, EndpointBodyFile, file.Kind)
	assert.Equal(t, "./payload.json", file.FilePath.Raw())

	doc := `
!multipart
part-a:
  headers:
    content-type: text/plain
  body: !str "hi"
`
	var mp RawEndpointBody
	require.NoError(t, yaml.Unmarshal([]byte(doc), &mp))
	assert.Equal(t, EndpointBodyMultipart, mp.Kind)
	require.Len(t, mp.Multipart, 1)
	assert.Equal(t, "part-a", mp.Multipart[0].Name)
	require.NotNil(t, mp.Multipart[0].Body)
	assert.Equal(t, "hi", mp.Multipart[0].Body.Str.Raw())
}

func TestRawProviderTaggedUnion(t *testing.T) {
	var fp RawProvider
	require.NoError(t, yaml.Unmarshal([]byte(`!file {path: "./a.csv"}`), &fp))
	assert.Equal(t, ProviderKindFile, fp.Kind)
	assert.Equal(t, "./a.csv", fp.File.Path.Raw())
	assert.True(t, fp.File.Buffer.Auto)
	assert.Equal(t, "line", fp.File.Format)

	var lp RawProvider
	require.NoError(t, yaml.Unmarshal([]byte(`!list [1, 2, 3]`), &lp))
	assert.Equal(t, ProviderKindList, lp.Kind)
	assert.True(t, lp.List.Repeat)
	require.Len(t, lp.List.Values, 3)

	var rp RawProvider
	require.NoError(t, yaml.Unmarshal([]byte(`!range {start: 0, end: 10}`), &rp))
	assert.Equal(t, ProviderKindRange, rp.Kind)
	assert.Equal(t, int64(1), rp.Range.Step)

	var resp RawProvider
	require.NoError(t, yaml.Unmarshal([]byte(`!response {}`), &resp))
	assert.Equal(t, ProviderKindResponse, resp.Kind)
	assert.True(t, resp.Response.Buffer.Auto)

	var bad RawProvider
	err := yaml.Unmarshal([]byte(`foo: bar`), &bad)
	assert.Error(t, err)
}

func TestBufferLimitRawVariants(t *testing.T) {
	var auto BufferLimitRaw
	require.NoError(t, yaml.Unmarshal([]byte(`"auto"`), &auto))
	assert.True(t, auto.Auto)

	var n BufferLimitRaw
	require.NoError(t, yaml.Unmarshal([]byte(`42`), &n))
	assert.False(t, n.Auto)
	assert.Equal(t, uint64(42), n.Limit)

	var bad BufferLimitRaw
	err := yaml.Unmarshal([]byte(`"sometimes"`), &bad)
	assert.Error(t, err)
}

func TestRawRangeProviderDefaultsAndStepValidation(t *testing.T) {
	var r RawRangeProvider
	require.NoError(t, yaml.Unmarshal([]byte(`start: 0`), &r))
	assert.Equal(t, int64(1<<63-1), r.End)
	assert.Equal(t, int64(1), r.Step)

	var bad RawRangeProvider
	err := yaml.Unmarshal([]byte(`{start: 0, step: 0}`), &bad)
	assert.Error(t, err)
}

func TestRawListProviderBareSequenceDefaultsRepeatTrue(t *testing.T) {
	var l RawListProvider
	require.NoError(t, yaml.Unmarshal([]byte(`["a", "b"]`), &l))
	assert.True(t, l.Repeat)
	require.Len(t, l.Values, 2)
}

func TestRawLoggerInlineQueryPlusFields(t *testing.T) {
	doc := `
select: "stats.rtt"
to: !stdout
pretty: true
`
	var l RawLogger
	require.NoError(t, yaml.Unmarshal([]byte(doc), &l))
	assert.Equal(t, LogToStdout, l.To.Kind)
	assert.True(t, l.Pretty)

	var sel string
	require.NoError(t, l.Select.Decode(&sel))
	assert.Equal(t, "stats.rtt", sel)
}

func TestRawLogToVariants(t *testing.T) {
	var stdout RawLogTo
	require.NoError(t, yaml.Unmarshal([]byte(`!stdout`), &stdout))
	assert.Equal(t, LogToStdout, stdout.Kind)

	var stderr RawLogTo
	require.NoError(t, yaml.Unmarshal([]byte(`!stderr`), &stderr))
	assert.Equal(t, LogToStderr, stderr.Kind)

	var file RawLogTo
	require.NoError(t, yaml.Unmarshal([]byte(`!file "./out.log"`), &file))
	assert.Equal(t, LogToFile, file.Kind)
	assert.Equal(t, "./out.log", file.File.Raw())

	var bad RawLogTo
	err := yaml.Unmarshal([]byte(`!raw {to: "x"}`), &bad)
	assert.Error(t, err)
}
