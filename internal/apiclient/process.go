package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/joseph-ayodele/docflow/internal/entity"
)

// SplitInit uploads one file and creates a server-side page job.
func (c *Client) SplitInit(ctx context.Context, upload entity.Upload, cfg entity.ProcessConfig, sessionID string) (entity.InitResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("ocr_engine", cfg.Engine); err != nil {
		return entity.InitResult{}, fmt.Errorf("split_init: %w", err)
	}
	if err := mw.WriteField("ocr_languages", strings.Join(cfg.Languages, ",")); err != nil {
		return entity.InitResult{}, fmt.Errorf("split_init: %w", err)
	}
	if sessionID != "" {
		if err := mw.WriteField("session_id", sessionID); err != nil {
			return entity.InitResult{}, fmt.Errorf("split_init: %w", err)
		}
	}
	fw, err := mw.CreateFormFile("file", upload.Name)
	if err != nil {
		return entity.InitResult{}, fmt.Errorf("split_init: %w", err)
	}
	if _, err := fw.Write(upload.Data); err != nil {
		return entity.InitResult{}, fmt.Errorf("split_init: %w", err)
	}
	if err := mw.Close(); err != nil {
		return entity.InitResult{}, fmt.Errorf("split_init: %w", err)
	}

	resp, err := c.do(ctx, request{
		op:          "split_init",
		method:      http.MethodPost,
		path:        "/process/split-init",
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
	})
	if err != nil {
		return entity.InitResult{}, err
	}
	var out entity.InitResult
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return entity.InitResult{}, fmt.Errorf("split_init: decode json: %w", err)
	}
	return out, nil
}

type splitNextPayload struct {
	JobID     string `json:"jobId"`
	SessionID string `json:"sessionId,omitempty"`
	Append    bool   `json:"append"`
}

// SplitNext processes the job's next page and returns the updated table.
func (c *Client) SplitNext(ctx context.Context, jobID, sessionID string, appendRows bool) (entity.StepResult, error) {
	var out entity.StepResult
	err := c.doJSON(ctx, "split_next", http.MethodPost, "/process/split-next", nil,
		splitNextPayload{JobID: jobID, SessionID: sessionID, Append: appendRows}, &out)
	return out, err
}
