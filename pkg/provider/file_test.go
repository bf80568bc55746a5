package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
)

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestFileLineSkipsBlanksAndComments(t *testing.T) {
	path := writeTemp(t, "lines.txt", "a\n\n# skip me\nb\n")
	p := NewFileLine("f", FileLineConfig{Path: path, Comment: "#"}, nil)
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v1, err := p.Receiver().Recv(ctx)
	require.NoError(t, err)
	v2, err := p.Receiver().Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, jsonvalue.String("a"), v1)
	assert.Equal(t, jsonvalue.String("b"), v2)
}

func TestFileLineMissingPathReportsError(t *testing.T) {
	errCh := make(chan error, 1)
	p := NewFileLine("f", FileLineConfig{Path: "/nonexistent/path.txt"}, errCh)
	defer p.Stop()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected an error for a missing file")
	}
}

func TestFileJSONParsesConcatenatedValues(t *testing.T) {
	path := writeTemp(t, "values.json", `{"a":1} {"a":2}`+"\n"+`{"a":3}`)
	p := NewFileJSON("f", FileJSONConfig{Path: path}, nil)
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		_, err := p.Receiver().Recv(ctx)
		require.NoError(t, err)
	}
}

func TestFileCSVWithHeadersDecodesObjects(t *testing.T) {
	path := writeTemp(t, "rows.csv", "name,age\nalice,30\nbob,40\n")
	p := NewFileCSV("f", FileCSVConfig{Path: path, Headers: true}, nil)
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := p.Receiver().Recv(ctx)
	require.NoError(t, err)
	obj, _, ok := v.Object()
	require.True(t, ok)
	assert.Equal(t, jsonvalue.String("alice"), obj["name"])
	assert.Equal(t, jsonvalue.String("30"), obj["age"])
}

func TestFileCSVWithoutHeadersDecodesObjectsWithNumericKeys(t *testing.T) {
	path := writeTemp(t, "rows.csv", "a,b\nc,d\n")
	p := NewFileCSV("f", FileCSVConfig{Path: path}, nil)
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := p.Receiver().Recv(ctx)
	require.NoError(t, err)
	obj, _, ok := v.Object()
	require.True(t, ok)
	assert.Equal(t, jsonvalue.String("a"), obj["0"])
	assert.Equal(t, jsonvalue.String("b"), obj["1"])
}
