package httpengine

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
	"github.com/grafana/pewpewgo/pkg/template"
)

// compileRegular compiles and fully resolves (against an empty vars scope)
// a Regular-kind template, the common field type on endpoint url/headers/
// body.
func compileRegular(t *testing.T, raw string) *template.Template {
	t.Helper()
	tpl, err := template.Compile(raw, template.Regular)
	require.NoError(t, err)
	require.NoError(t, tpl.ResolveVars(noVars))
	return tpl
}

func noVars(path string) (jsonvalue.Value, error) {
	return jsonvalue.Null(), nil
}

func testRuntime(t *testing.T) *template.Runtime {
	t.Helper()
	rt, err := template.NewRuntime("")
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

// gzWriteHelloGzip writes a gzip-compressed "hello gzip" into buf.
func gzWriteHelloGzip(t *testing.T, buf *bytes.Buffer) {
	t.Helper()
	gz := gzip.NewWriter(buf)
	_, err := gz.Write([]byte("hello gzip"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
}
