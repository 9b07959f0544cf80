// Package photoprism is a small PhotoPrism API client covering what is
// needed to publish finished images into an album.
package photoprism

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// PhotoPrism is an authenticated API session.
type PhotoPrism struct {
	parsedURL *url.URL
	client    *http.Client
	token     string
	userUID   string
}

// StatusError is returned when the API answers with an unexpected status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

func (pp *PhotoPrism) resolveURL(segments ...string) string {
	return pp.parsedURL.JoinPath(segments...).String()
}

// authResponse is the PhotoPrism session response. Fields are unexported
// to keep the token out of accidental encodings.
type authResponse struct {
	token   string
	userUID string
}

func (a *authResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		AccessToken string `json:"access_token"`
		User        struct {
			UID string `json:"UID"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal auth response: %w", err)
	}
	a.token, a.userUID = raw.AccessToken, raw.User.UID
	return nil
}

// NewPhotoPrism opens a session on the server at rawURL.
func NewPhotoPrism(ctx context.Context, rawURL, username, password string) (*PhotoPrism, error) {
	parsed, err := url.Parse(strings.TrimSuffix(rawURL, "/") + "/api/v1")
	if err != nil {
		return nil, fmt.Errorf("invalid PhotoPrism URL: %w", err)
	}
	pp := &PhotoPrism{parsedURL: parsed, client: http.DefaultClient}
	if err := pp.auth(ctx, username, password); err != nil {
		return nil, fmt.Errorf("could not authenticate: %w", err)
	}
	return pp, nil
}

func (pp *PhotoPrism) auth(ctx context.Context, username, password string) error {
	creds, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return fmt.Errorf("could not marshal input: %w", err)
	}

	resp, err := pp.do(ctx, http.MethodPost, bytes.NewReader(creds), "application/json", "sessions")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result authResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("could not unmarshal response: %w", err)
	}
	pp.token, pp.userUID = result.token, result.userUID
	return nil
}

// Logout ends the session. Logging out twice is a no-op.
func (pp *PhotoPrism) Logout(ctx context.Context) error {
	if pp.token == "" {
		return nil
	}
	resp, err := pp.do(ctx, http.MethodDelete, nil, "", "session")
	if err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	resp.Body.Close()
	pp.token = ""
	return nil
}
