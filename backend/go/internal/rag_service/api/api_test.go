package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"DocQA/backend/go/internal/rag_service/rag/schema"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeService struct {
	answer     *schema.Answer
	err        error
	deletes    atomic.Int32
	purged     bool
	describeOK bool
}

func (f *fakeService) IndexName() string { return "docs" }

func (f *fakeService) Ask(_ context.Context, q string) (*schema.Answer, error) {
	if strings.TrimSpace(q) == "" {
		return nil, schema.ErrEmptyQuestion
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func (f *fakeService) Describe(context.Context) (schema.IndexStats, error) {
	if !f.describeOK {
		return schema.IndexStats{}, &schema.ProviderError{Op: "describe", Entity: "docs", Err: errors.New("connection refused")}
	}
	return schema.IndexStats{Name: "docs", RecordCount: 7, Ready: true}, nil
}

func (f *fakeService) Delete(context.Context) error {
	f.deletes.Add(1)
	return nil
}

func (f *fakeService) Reindex(_ context.Context, purge bool) (*schema.IngestReport, error) {
	f.purged = purge
	return &schema.IngestReport{
		RunID: "run-1", IndexName: "docs", DocumentsIngested: 1, RecordsUpserted: 4, BatchSizes: []int{4},
		Failures: []schema.DocumentFailure{{SourcePath: "b.pdf", FirstChunk: 0, LastChunk: 2, Kind: schema.FailureUpsert, Err: errors.New("rejected")}},
	}, nil
}

func newRouter(svc *fakeService) *gin.Engine {
	r := gin.New()
	NewHandler(svc, nil).Register(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAsk(t *testing.T) {
	svc := &fakeService{answer: &schema.Answer{Text: "Paris", Sources: []schema.QueryMatch{{ID: "f.txt_0", Score: 0.9}}}}
	w := do(newRouter(svc), http.MethodPost, "/api/v1/rag/ask", `{"question":"capital of France?"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var got schema.Answer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Paris", got.Text)
	assert.False(t, got.NoMatches)
	assert.Equal(t, "f.txt_0", got.Sources[0].ID)
}

func TestAskNoMatches(t *testing.T) {
	svc := &fakeService{answer: &schema.Answer{NoMatches: true}}
	w := do(newRouter(svc), http.MethodPost, "/api/v1/rag/ask", `{"question":"anything"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"answer":"","no_matches":true}`, w.Body.String())
}

func TestAskErrors(t *testing.T) {
	r := newRouter(&fakeService{})
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/v1/rag/ask", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/v1/rag/ask", `{"question":"  "}`).Code)

	svc := &fakeService{err: &schema.ProviderError{Op: "generate", Entity: "gpt", Err: context.DeadlineExceeded}}
	w := do(newRouter(svc), http.MethodPost, "/api/v1/rag/ask", `{"question":"q"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "generate gpt")
}

func TestDescribeAndHealth(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/api/v1/rag/index", "").Code)

	svc.describeOK = true
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", "").Code)
	w := do(r, http.MethodGet, "/api/v1/rag/index", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"record_count":7`)
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodDelete, "/api/v1/rag/index/records", "").Code)
	assert.Zero(t, svc.deletes.Load())

	assert.Equal(t, http.StatusOK, do(r, http.MethodDelete, "/api/v1/rag/index/records?confirm=true", "").Code)
	assert.Equal(t, int32(1), svc.deletes.Load())
}

func TestReindex(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc)

	w := do(r, http.MethodPost, "/api/v1/rag/reindex", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, svc.purged)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got["run_id"])
	failures := got["failures"].([]any)
	require.Len(t, failures, 1)
	assert.Equal(t, "rejected", failures[0].(map[string]any)["error"])

	w = do(r, http.MethodPost, "/api/v1/rag/reindex", `{"purge":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.purged)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusOf(errors.Join(schema.ErrIndexNotFound)))
	assert.Equal(t, http.StatusConflict, StatusOf(&schema.ConfigError{Field: "index.dimension"}))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("other")))
}

func TestConsoleOverWebsocket(t *testing.T) {
	svc := &fakeService{describeOK: true, answer: &schema.Answer{Text: "Paris"}}
	srv := httptest.NewServer(newRouter(svc))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/console", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	readUntil := func(want string) string {
		t.Helper()
		var sb strings.Builder
		for !strings.Contains(sb.String(), want) {
			_, msg, err := conn.ReadMessage()
			require.NoError(t, err, "waiting for %q, got %q", want, sb.String())
			sb.Write(msg)
		}
		return sb.String()
	}

	readUntil("Commands:")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("capital of France?")))
	readUntil("Paris")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("describe")))
	readUntil("Records:   7")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("delete")))
	readUntil("[y/N]")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("y")))
	readUntil("Deleted all records")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("exit")))
	readUntil("Bye.")

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Equal(t, int32(1), svc.deletes.Load())
}
