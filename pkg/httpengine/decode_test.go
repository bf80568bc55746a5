package httpengine

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBodyIdentity(t *testing.T) {
	body := io.NopCloser(bytes.NewReader([]byte("hello")))
	out, err := decodeBody("", body, true)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestDecodeBodyNotNeededDrainsWithoutDecoding(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte("hello"))
	require.NoError(t, gz.Close())

	out, err := decodeBody("gzip", io.NopCloser(&buf), false)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestDecodeBodyGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte("hello gzip"))
	require.NoError(t, gz.Close())

	out, err := decodeBody("gzip", io.NopCloser(&buf), true)
	require.NoError(t, err)
	assert.Equal(t, "hello gzip", string(out))
}

func TestDecodeBodyDeflate(t *testing.T) {
	var buf bytes.Buffer
	fl, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, _ = fl.Write([]byte("hello deflate"))
	require.NoError(t, fl.Close())

	out, err := decodeBody("deflate", io.NopCloser(&buf), true)
	require.NoError(t, err)
	assert.Equal(t, "hello deflate", string(out))
}

func TestDecodeBodyBrotli(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, _ = bw.Write([]byte("hello brotli"))
	require.NoError(t, bw.Close())

	out, err := decodeBody("br", io.NopCloser(&buf), true)
	require.NoError(t, err)
	assert.Equal(t, "hello brotli", string(out))
}

func TestDecodeBodyUnsupportedEncoding(t *testing.T) {
	body := io.NopCloser(bytes.NewReader([]byte("x")))
	_, err := decodeBody("compress", body, true)
	assert.Error(t, err)
}
