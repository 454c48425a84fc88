package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
)

type tablePayload struct {
	Table entity.Snapshot `json:"table"`
}

// UpdateResults sends the full table and returns the server's canonical copy.
func (c *Client) UpdateResults(ctx context.Context, rows entity.Snapshot) (entity.Snapshot, error) {
	if rows == nil {
		rows = entity.Snapshot{}
	}
	var out tablePayload
	if err := c.doJSON(ctx, "results_update", http.MethodPost, "/results/update", nil, tablePayload{Table: rows}, &out); err != nil {
		return nil, err
	}
	if out.Table == nil {
		out.Table = entity.Snapshot{}
	}
	return out.Table, nil
}

// Download fetches a server-side export of the persisted results.
func (c *Client) Download(ctx context.Context, format constants.ExportFormat) ([]byte, error) {
	var path string
	switch format {
	case constants.ExportExcel:
		path = "/results/excel"
	case constants.ExportCSV:
		path = "/results/csv"
	case constants.ExportJSON:
		path = "/results/json"
	default:
		return nil, common.InputError(fmt.Sprintf("format %q is not a server export", format))
	}
	resp, err := c.do(ctx, request{op: "results_download", method: http.MethodGet, path: path})
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

// EndSession tells the server the session is gone. Callers treat failure as non-fatal.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	q := url.Values{}
	q.Set("sessionID", sessionID)
	_, err := c.do(ctx, request{op: "session_end", method: http.MethodPost, path: "/session/end", query: q})
	return err
}

// SessionEndURL is the beacon target for sessionID.
func (c *Client) SessionEndURL(sessionID string) string {
	q := url.Values{}
	q.Set("sessionID", sessionID)
	return c.endpoint("/session/end", q)
}
