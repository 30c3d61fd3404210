package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/marmos91/opcuad/pkg/session"
)

// Readiness is the payload of GET /health/ready.
type Readiness struct {
	Sessions       int `json:"sessions"`
	ActiveSessions int `json:"active_sessions"`
}

// Ready queries the readiness probe.
func (c *Client) Ready(ctx context.Context) (*Readiness, error) {
	var r Readiness
	if err := c.do(ctx, http.MethodGet, "/health/ready", &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListSessions returns the diagnostics of every session in the table,
// including terminated sessions not yet purged.
func (c *Client) ListSessions(ctx context.Context) ([]session.Diagnostics, error) {
	var list []session.Diagnostics
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetSession returns one session. id is a session node id such as
// "ns=1;i=7", or its numeric shorthand "7".
func (c *Client) GetSession(ctx context.Context, id string) (*session.Diagnostics, error) {
	var d session.Diagnostics
	if err := c.do(ctx, http.MethodGet, sessionPath(id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// CloseSession terminates a session. It requires a token carrying the
// server's admin role.
func (c *Client) CloseSession(ctx context.Context, id string) (*session.Diagnostics, error) {
	var d session.Diagnostics
	if err := c.do(ctx, http.MethodDelete, sessionPath(id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func sessionPath(id string) string {
	return "/api/v1/sessions/" + url.PathEscape(id)
}
