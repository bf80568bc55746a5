package httpengine

import (
	"fmt"
	"net/http"

	"github.com/grafana/pewpewgo/pkg/jsonvalue"
	"github.com/grafana/pewpewgo/pkg/query"
)

// buildResponseObject drains resp.Body and constructs the `response`
// binding, decoding the body only when caps references it.
func buildResponseObject(resp *http.Response, caps query.Capability) (jsonvalue.Value, error) {
	needBody := caps.Has(query.ResponseBody) || caps.Has(query.ResponseAll)
	body, err := decodeBody(resp.Header.Get("Content-Encoding"), resp.Body, needBody)
	if err != nil {
		return jsonvalue.Null(), fmt.Errorf("decoding response body: %w", err)
	}

	headerKeys := make([]string, 0, len(resp.Header))
	headerVals := make(map[string]jsonvalue.Value, len(resp.Header))
	headerAllVals := make(map[string]jsonvalue.Value, len(resp.Header))
	for k, vs := range resp.Header {
		if len(vs) == 0 {
			continue
		}
		headerKeys = append(headerKeys, k)
		headerVals[k] = jsonvalue.String(vs[0])
		all := make([]jsonvalue.Value, len(vs))
		for i, v := range vs {
			all[i] = jsonvalue.String(v)
		}
		headerAllVals[k] = jsonvalue.List(all)
	}

	obj := jsonvalue.NewObject().
		Set("status", jsonvalue.Int(int64(resp.StatusCode))).
		Set("start-line", jsonvalue.String(fmt.Sprintf("HTTP/%d.%d %s", resp.ProtoMajor, resp.ProtoMinor, resp.Status))).
		Set("headers", jsonvalue.Object(headerKeys, headerVals)).
		Set("headers_all", jsonvalue.Object(headerKeys, headerAllVals)).
		Set("body", jsonvalue.String(string(body)))

	return obj, nil
}
