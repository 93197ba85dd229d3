package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// postJSON posts body as JSON and, on a 2xx response, decodes the body
// into out (when out is non-nil). It returns the HTTP status code; a
// non-2xx status is not an error by itself because several channel APIs
// put the real verdict in the body, but its body is never decoded so an
// HTML error page surfaces as the status, not as a decode failure.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any, out any) (int, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("notify: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode/100 == 2 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, fmt.Errorf("notify: decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// readBodyError drains up to 512 bytes for error reporting.
func readBodyError(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}
