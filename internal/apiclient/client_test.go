package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/entity"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL + "/api", RateLimit: 1000, RateBurst: 100}, nil)
	require.NoError(t, err)
	return c
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "not a url"}, nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestSplitInit_SendsMultipart(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/process/split-init", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "easyocr", r.FormValue("ocr_engine"))
		assert.Equal(t, "en,vi", r.FormValue("ocr_languages"))
		assert.Equal(t, "sess-1", r.FormValue("session_id"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "a.pdf", hdr.Filename)
		assert.Equal(t, "%PDF-1.4", string(body))
		_, _ = w.Write([]byte(`{"jobId":"job-1","totalPages":3,"splitNotes":["rotated"]}`))
	}))

	res, err := c.SplitInit(context.Background(),
		entity.Upload{Name: "a.pdf", Data: []byte("%PDF-1.4")},
		entity.ProcessConfig{Engine: "easyocr", Languages: []string{"en", "vi"}},
		"sess-1")
	require.NoError(t, err)
	assert.Equal(t, entity.InitResult{JobID: "job-1", TotalPages: 3, SplitNotes: []string{"rotated"}}, res)
}

func TestSplitNext_DecodesStep(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/process/split-next", r.URL.Path)
		var in splitNextPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, splitNextPayload{JobID: "job-1", SessionID: "s", Append: true}, in)
		_, _ = w.Write([]byte(`{
			"done": false,
			"table": [{"fileKey":"a#1","fileName":"a.pdf","confidence":0.9,"fields":{"Total":5,"Name":"x"}}],
			"summary": {"totalFiles":1,"averageConfidence":0.9,"warningsCount":0},
			"pdfPreview": {"available": false, "error": "no poppler"},
			"pageLabel": "Page 1/3", "pageNumber": 1, "totalPages": 3
		}`))
	}))

	step, err := c.SplitNext(context.Background(), "job-1", "s", true)
	require.NoError(t, err)
	require.Len(t, step.Table, 1)
	assert.Equal(t, []string{"Total", "Name"}, step.Table[0].Fields.Keys())
	assert.Equal(t, "Page 1/3", step.PageLabel)
	require.NotNil(t, step.PDFPreview)
	assert.False(t, step.PDFPreview.Available)
	assert.True(t, step.HasPayload())
}

func TestDo_ErrorDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
		code   codes.Code
	}{
		{"string detail", http.StatusBadRequest, `{"detail":"File is empty"}`, "File is empty", codes.InvalidArgument},
		{"list detail", http.StatusUnprocessableEntity, `{"detail":[{"msg":"a"},{"msg":"b"}]}`, "a; b", codes.InvalidArgument},
		{"no detail", http.StatusInternalServerError, `oops`, common.GenericRequestMessage, codes.Internal},
		{"not found", http.StatusNotFound, `{"detail":"Job not found"}`, "Job not found", codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			_, err := c.SplitNext(context.Background(), "job", "", false)
			require.Error(t, err)
			var apiErr *common.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.want, common.UserMessage(err))
			assert.ErrorIs(t, err, common.ErrRequestFailed)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestUpdateResults_KeepsFieldOrder(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/results/update", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(raw), `"fields":{"Zeta":"z","Alpha":"a"}`)
		_, _ = w.Write([]byte(`{"table":[{"fileKey":"k","fields":{"Zeta":"z","Alpha":"server"}}]}`))
	}))

	rows := entity.Snapshot{{FileKey: "k", Fields: entity.NewFields("Zeta", "z", "Alpha", "a")}}
	out, err := c.UpdateResults(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, out, 1)
	v, _ := out[0].Fields.Get("Alpha")
	assert.Equal(t, "server", v)
	assert.Equal(t, []string{"Zeta", "Alpha"}, out[0].Fields.Keys())
}

func TestDownload(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/results/csv", r.URL.Path)
		_, _ = w.Write([]byte("a,b\n"))
	}))

	data, err := c.Download(context.Background(), constants.ExportCSV)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	_, err = c.Download(context.Background(), constants.ExportLocalXLSX)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPreview(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/preview/a b.pdf", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))

	data, ct, err := c.PreviewImage(context.Background(), "a b.pdf", 2)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Len(t, data, 4)
	assert.Contains(t, c.PreviewDocumentURL("a b.pdf"), "/api/preview/a%20b.pdf/pdf")
}

func TestSchemaCalls(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/schema":
			_, _ = w.Write([]byte(`{"schema":{"Name":{"type":"string"},"Total":{"type":"number","required":true}}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/schema/fields":
			var in addFieldPayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "Date", in.Name)
			assert.Equal(t, "date", in.Type)
			require.NotNil(t, in.Format)
			assert.Equal(t, "YYYY-MM-DD", *in.Format)
			assert.Nil(t, in.Description)
			_, _ = w.Write([]byte(`{"schema":{"Date":{"type":"date","format":"YYYY-MM-DD"}}}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/schema/fields/Total":
			_, _ = w.Write([]byte(`{"schema":{}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	s, err := c.GetSchema(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Total"}, s.Names())
	total, _ := s.Field("Total")
	assert.True(t, total.Required)
	assert.Equal(t, constants.FieldNumber, total.Type)

	s, err = c.AddField(ctx, entity.FieldSpec{Name: "Date", Type: constants.FieldDate, Format: "YYYY-MM-DD", Nullable: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Date"}, s.Names())

	s, err = c.DeleteField(ctx, "Total")
	require.NoError(t, err)
	assert.Zero(t, s.Len())
}

func TestSessionIDHeader(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tab-7", r.Header.Get("X-Session-ID"))
		assert.Equal(t, "req-1", r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`{"schema":{}}`))
	}))
	ctx := common.WithSessionID(common.WithRequestID(context.Background(), "req-1"), "tab-7")
	_, err := c.GetSchema(ctx)
	require.NoError(t, err)
}

func TestBeaconAndEndSession(t *testing.T) {
	hits := make(chan string, 2)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/session/end", r.URL.Path)
		hits <- r.URL.Query().Get("sessionID")
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, NewBeacon(c, time.Second).Send(context.Background(), "s-1"))
	require.NoError(t, c.EndSession(context.Background(), "s-2"))
	assert.Equal(t, "s-1", <-hits)
	assert.Equal(t, "s-2", <-hits)
}

func TestBeacon_NonSuccess(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	assert.Error(t, NewBeacon(c, time.Second).Send(context.Background(), "s"))
}
