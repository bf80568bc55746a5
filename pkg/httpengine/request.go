package httpengine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/grafana/pewpewgo/pkg/config"
	"github.com/grafana/pewpewgo/pkg/jsonvalue"
	"github.com/grafana/pewpewgo/pkg/query"
	"github.com/grafana/pewpewgo/pkg/template"
)

// builtRequest is everything the Building state produces: a ready-to-send
// *http.Request plus the `request` object queries/logs may bind against.
type builtRequest struct {
	http *http.Request
	obj  jsonvalue.Value
}

// buildRequest renders url/headers/body from the endpoint's compiled
// templates against one tuple of provider draws.
func buildRequest(ctx context.Context, rt *template.Runtime, ep *config.ResolvedEndpoint, clientHeaders []config.ResolvedHeader, providerValues map[string]jsonvalue.Value) (*builtRequest, error) {
	url, err := ep.URL.Evaluate(ctx, rt, providerValues)
	if err != nil {
		return nil, fmt.Errorf("evaluating url: %w", err)
	}

	bodyReader, bodyBytes, contentType, err := renderBody(ctx, rt, ep.Body, providerValues)
	if err != nil {
		return nil, fmt.Errorf("rendering body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, ep.Method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("constructing request: %w", err)
	}

	headerKeys := make([]string, 0, len(clientHeaders)+len(ep.Headers))
	headerVals := make(map[string]jsonvalue.Value, len(clientHeaders)+len(ep.Headers))
	headerAllVals := make(map[string][]jsonvalue.Value, len(clientHeaders)+len(ep.Headers))
	applyHeader := func(h config.ResolvedHeader) error {
		v, err := h.Template.Evaluate(ctx, rt, providerValues)
		if err != nil {
			return fmt.Errorf("evaluating header %q: %w", h.Name, err)
		}
		req.Header.Add(h.Name, v)
		if _, seen := headerVals[h.Name]; !seen {
			headerKeys = append(headerKeys, h.Name)
		}
		headerVals[h.Name] = jsonvalue.String(v)
		headerAllVals[h.Name] = append(headerAllVals[h.Name], jsonvalue.String(v))
		return nil
	}
	for _, h := range clientHeaders {
		if err := applyHeader(h); err != nil {
			return nil, err
		}
	}
	for _, h := range ep.Headers {
		if err := applyHeader(h); err != nil {
			return nil, err
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
		headerKeys = append(headerKeys, "Content-Type")
		headerVals["Content-Type"] = jsonvalue.String(contentType)
		headerAllVals["Content-Type"] = []jsonvalue.Value{jsonvalue.String(contentType)}
	}

	headerAllObjVals := make(map[string]jsonvalue.Value, len(headerAllVals))
	for k, vs := range headerAllVals {
		headerAllObjVals[k] = jsonvalue.List(vs)
	}

	obj := jsonvalue.NewObject().
		Set("method", jsonvalue.String(ep.Method)).
		Set("url", jsonvalue.String(url)).
		Set("start-line", jsonvalue.String(fmt.Sprintf("%s %s HTTP/1.1", ep.Method, req.URL.RequestURI()))).
		Set("headers", jsonvalue.Object(headerKeys, headerVals)).
		Set("headers_all", jsonvalue.Object(headerKeys, headerAllObjVals)).
		Set("body", jsonvalue.String(string(bodyBytes)))

	return &builtRequest{http: req, obj: obj}, nil
}

// renderBody renders an endpoint's body per its kind, returning a reader
// suitable for http.NewRequestWithContext and, when the body is small
// enough to have been rendered in memory (Str/Multipart), the raw bytes
// for the `request.body` binding. File bodies stream directly from disk
// and report an empty `request.body` rather than buffering the whole file
// just to satisfy a rarely-used binding.
func renderBody(ctx context.Context, rt *template.Runtime, body *config.ResolvedBody, providerValues map[string]jsonvalue.Value) (io.Reader, []byte, string, error) {
	if body == nil {
		return nil, nil, "", nil
	}
	switch body.Kind {
	case config.EndpointBodyStr:
		s, err := body.Str.Evaluate(ctx, rt, providerValues)
		if err != nil {
			return nil, nil, "", err
		}
		return bytes.NewReader([]byte(s)), []byte(s), "", nil

	case config.EndpointBodyFile:
		path, err := body.FilePath.Evaluate(ctx, rt, providerValues)
		if err != nil {
			return nil, nil, "", err
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, "", fmt.Errorf("opening body file %q: %w", path, err)
		}
		return f, nil, "", nil

	case config.EndpointBodyMultipart:
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		for _, section := range body.Multipart {
			partHeaders := make(map[string][]string, len(section.Headers))
			for _, h := range section.Headers {
				v, err := h.Template.Evaluate(ctx, rt, providerValues)
				if err != nil {
					return nil, nil, "", fmt.Errorf("multipart %q header %q: %w", section.Name, h.Name, err)
				}
				partHeaders[h.Name] = append(partHeaders[h.Name], v)
			}
			part, err := mw.CreatePart(partHeaders)
			if err != nil {
				return nil, nil, "", fmt.Errorf("creating multipart section %q: %w", section.Name, err)
			}
			_, sectionBytes, _, err := renderBody(ctx, rt, section.Body, providerValues)
			if err != nil {
				return nil, nil, "", fmt.Errorf("rendering multipart section %q: %w", section.Name, err)
			}
			if _, err := part.Write(sectionBytes); err != nil {
				return nil, nil, "", err
			}
		}
		if err := mw.Close(); err != nil {
			return nil, nil, "", err
		}
		return bytes.NewReader(buf.Bytes()), buf.Bytes(), mw.FormDataContentType(), nil

	default:
		return nil, nil, "", fmt.Errorf("unknown body kind %v", body.Kind)
	}
}

// requiredCapabilities unions the request/response/stats surfaces every
// declare/provides/logs query on this endpoint references, used to decide
// whether the response body needs decoding at all.
func requiredCapabilities(ep *config.ResolvedEndpoint) query.Capability {
	var caps query.Capability
	for _, d := range ep.Declare {
		caps |= d.RequiredCapabilities()
	}
	for _, p := range ep.Provides {
		caps |= p.Query.RequiredCapabilities()
	}
	for _, l := range ep.Logs {
		caps |= l.Query.RequiredCapabilities()
	}
	return caps
}
