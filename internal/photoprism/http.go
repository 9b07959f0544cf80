package photoprism

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// do sends a request to the API path built from segments. Anything but
// 200 OK is returned as *StatusError. The caller closes the body.
func (pp *PhotoPrism) do(ctx context.Context, method string, body io.Reader, contentType string, segments ...string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, pp.resolveURL(segments...), body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	if pp.token != "" {
		req.Header.Set("Authorization", "Bearer "+pp.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := pp.client.Do(req) //nolint:gosec // URL constructed from validated parsedURL via resolveURL
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	return resp, nil
}

// getJSON decodes the response of a GET into a new T.
func getJSON[T any](ctx context.Context, pp *PhotoPrism, segments ...string) (*T, error) {
	resp, err := pp.do(ctx, http.MethodGet, nil, "", segments...)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result T
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w", err)
	}
	return &result, nil
}

// sendJSON sends payload as the JSON body and discards the response.
func sendJSON(ctx context.Context, pp *PhotoPrism, method string, payload any, segments ...string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("could not marshal request body: %w", err)
	}
	resp, err := pp.do(ctx, method, bytes.NewReader(data), "application/json", segments...)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// readErrorBody reads the response body for error messages.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "(could not read error body)"
	}
	return string(body)
}

// IsNotFoundError reports a 404 Not Found response.
func IsNotFoundError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// IsPermissionError reports 401 Unauthorized and 403 Forbidden responses.
func IsPermissionError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden)
}
