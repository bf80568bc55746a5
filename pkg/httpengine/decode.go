package httpengine

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
)

// decodeBody drains resp.Body, stream-decoding it per Content-Encoding
// only when the caller actually needs the bytes: the body is stream-
// decoded into a buffer only if any select/where requires it, else it is
// drained and discarded. When needBody is false the body is still fully
// drained (so the connection can be reused) but not decoded.
func decodeBody(contentEncoding string, body io.ReadCloser, needBody bool) ([]byte, error) {
	defer body.Close()

	if !needBody {
		_, err := io.Copy(io.Discard, body)
		return nil, err
	}

	var r io.Reader = body
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		// no decoding
	case "gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("httpengine: opening gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	case "deflate":
		fl := flate.NewReader(body)
		defer fl.Close()
		r = fl
	case "br":
		r = brotli.NewReader(body)
	default:
		return nil, fmt.Errorf("httpengine: unsupported content-encoding %q", contentEncoding)
	}

	return io.ReadAll(r)
}
