package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/pewpewgo/pkg/config"
)

func tryTestConfig(t *testing.T, okURL, otherURL string) *config.Resolved {
	t.Helper()
	doc := fmt.Sprintf(`
config:
  client:
    request_timeout: 2s
    keepalive: 2s
  general:
    bucket_size: 1s

endpoints:
  - url: %q
    method: GET
    tags:
      kind: "wanted"
  - url: %q
    method: GET
    tags:
      kind: "skipped"
`, okURL, otherURL)
	resolved, err := config.LoadBytes([]byte(doc))
	require.NoError(t, err)
	return resolved
}

func TestTryRunsEveryEndpointOnceAndWritesHumanOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resolved := tryTestConfig(t, srv.URL+"/a", srv.URL+"/b")

	dir := t.TempDir()
	outPath := filepath.Join(dir, "try.out")

	err := Try(context.Background(), resolved, TryOptions{
		Format: "human",
		File:   outPath,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "=== 0 ===")
	assert.Contains(t, out, "=== 1 ===")
}

func TestTryFiltersEndpointsByIncludeTag(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resolved := tryTestConfig(t, srv.URL+"/a", srv.URL+"/b")

	dir := t.TempDir()
	outPath := filepath.Join(dir, "try.ndjson")

	err := Try(context.Background(), resolved, TryOptions{
		Format:  "json",
		File:    outPath,
		Include: []string{"kind=wanted"},
	})
	require.NoError(t, err)

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()

	var results []tryResultJSON
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var r tryResultJSON
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		results = append(results, r)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, results, 1)
	assert.Equal(t, "0", results[0].Name)
}

func TestParseIncludeFiltersRejectsMalformedEntries(t *testing.T) {
	_, err := parseIncludeFilters([]string{"missingoperator"})
	assert.Error(t, err)
}

func TestIncludeFilterMatchesWildcardAndNegation(t *testing.T) {
	present := includeFilter{key: "kind", value: "*"}
	absent := includeFilter{key: "kind", value: "*", not: true}

	tags := map[string]string{"kind": "wanted"}
	assert.True(t, present.matches(tags))
	assert.False(t, absent.matches(tags))
	assert.False(t, present.matches(map[string]string{}))
	assert.True(t, absent.matches(map[string]string{}))
}
