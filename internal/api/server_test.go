package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/roastd/internal/ratelimit"
	"github.com/JakeFAU/roastd/internal/roast"
	"github.com/JakeFAU/roastd/internal/voice"
)

type fakeService struct {
	mu        sync.Mutex
	submitted []string
	submitErr error
	sessions  map[string]roast.Session
	gallery   []roast.GalleryEntry
	galErr    error
	lastLimit int
}

func newFakeService() *fakeService {
	return &fakeService{sessions: map[string]roast.Session{}}
}

func (f *fakeService) Submit(_ context.Context, rawURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, rawURL)
	return "sess-1", nil
}

func (f *fakeService) Status(_ context.Context, id string) (roast.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return roast.Session{}, roast.ErrNotFound
	}
	return sess, nil
}

func (f *fakeService) ReportInput(ctx context.Context, id string) (roast.ReportInput, error) {
	sess, err := f.Status(ctx, id)
	if err != nil {
		return roast.ReportInput{}, err
	}
	if sess.Status != roast.StatusComplete || sess.Analysis == nil {
		return roast.ReportInput{}, roast.ErrNotComplete
	}
	return roast.ReportInput{SessionID: id, URL: sess.URL, Analysis: *sess.Analysis}, nil
}

func (f *fakeService) Gallery(_ context.Context, limit int) ([]roast.GalleryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	return f.gallery, f.galErr
}

type fakeRenderer struct {
	err error
}

func (f fakeRenderer) Render(in roast.ReportInput) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.3 " + in.SessionID), nil
}

type fakeVoice struct {
	url string
	err error
}

func (f fakeVoice) SignedURL(context.Context) (string, error) { return f.url, f.err }

func newTestServer(svc *fakeService, opts Options) *Server {
	return NewServer(svc, fakeRenderer{}, fakeVoice{url: "wss://voice.example/x"}, opts, zap.NewNop())
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestSubmitRoast(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	rec := do(t, newTestServer(svc, Options{}).Handler(), http.MethodPost, "/roast", []byte(`{"url":"https://example.com"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "sess-1", decodeBody(t, rec)["sessionId"])
	require.Equal(t, []string{"https://example.com"}, svc.submitted)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSubmitRoastRejectsBadInput(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	h := newTestServer(svc, Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/roast", []byte(`{invalid`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/roast", []byte(`{}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "URL is required", decodeBody(t, rec)["error"])

	svc.submitErr = roast.ErrInvalidInput
	rec = do(t, h, http.MethodPost, "/roast", []byte(`{"url":"nope"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Invalid URL format", decodeBody(t, rec)["error"])

	svc.submitErr = errors.New("id generator broke")
	rec = do(t, h, http.MethodPost, "/roast", []byte(`{"url":"https://example.com"}`))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSubmitRoastRateLimited(t *testing.T) {
	t.Parallel()

	opts := Options{SubmitLimiter: ratelimit.New(ratelimit.Config{RPS: 0.001, Burst: 1})}
	h := newTestServer(newFakeService(), opts).Handler()

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/roast", []byte(`{"url":"https://a.example"}`)).Code)
	rec := do(t, h, http.MethodPost, "/roast", []byte(`{"url":"https://a.example"}`))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Polling is not throttled.
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/roast/x/status", nil).Code)
}

func TestGetStatus(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	svc.sessions["abc"] = roast.Session{
		SessionID: "abc",
		Status:    roast.StatusProcessing,
		Progress:  30,
		URL:       "https://example.com",
		Timestamp: time.UnixMilli(1700000000123),
	}
	h := newTestServer(svc, Options{}).Handler()

	rec := do(t, h, http.MethodGet, "/roast/abc/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"sessionId":"abc","status":"processing","progress":30,"url":"https://example.com","timestamp":1700000000123}`,
		rec.Body.String())

	rec = do(t, h, http.MethodGet, "/roast/missing/status", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Session not found", decodeBody(t, rec)["error"])
}

func TestGetReport(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	svc.sessions["done"] = roast.Session{
		SessionID: "done",
		Status:    roast.StatusComplete,
		Progress:  100,
		Analysis:  &roast.AnalysisResult{OverallRating: 3},
	}
	svc.sessions["busy"] = roast.Session{SessionID: "busy", Status: roast.StatusProcessing}
	h := newTestServer(svc, Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/roast/done/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.Equal(t, "attachment; filename=karens-roast-done.pdf", rec.Header().Get("Content-Disposition"))
	require.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = do(t, h, http.MethodPost, "/roast/busy/report", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Session not complete or analysis not available", decodeBody(t, rec)["error"])

	rec = do(t, h, http.MethodPost, "/roast/ghost/report", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetReportRenderFailure(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	svc.sessions["done"] = roast.Session{Status: roast.StatusComplete, Analysis: &roast.AnalysisResult{}}
	h := NewServer(svc, fakeRenderer{err: errors.New("font missing")}, nil, Options{}, nil).Handler()

	rec := do(t, h, http.MethodPost, "/roast/done/report", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Failed to generate report", decodeBody(t, rec)["error"])
}

func TestGetGallery(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	h := newTestServer(svc, Options{}).Handler()

	rec := do(t, h, http.MethodGet, "/roasts/gallery", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
	require.Zero(t, svc.lastLimit)

	svc.gallery = []roast.GalleryEntry{{
		ContentRecord: roast.ContentRecord{ID: "r1", URL: "https://a.example", Status: roast.RecordCompleted},
		ScreenshotURL: "https://cdn.example/a.jpg",
	}}
	rec = do(t, h, http.MethodGet, "/roasts/gallery?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"screenshotUrl":"https://cdn.example/a.jpg"`)
	require.Equal(t, 5, svc.lastLimit)

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/roasts/gallery?limit=abc", nil).Code)

	svc.galErr = errors.New("db down")
	require.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodGet, "/roasts/gallery", nil).Code)
}

func TestSignedURL(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	cases := []struct {
		name   string
		bridge VoiceBridge
		code   int
		body   string
	}{
		{"ok", fakeVoice{url: "wss://voice.example/x"}, http.StatusOK, `{"signedUrl":"wss://voice.example/x"}`},
		{"nil bridge", nil, http.StatusInternalServerError, `{"error":"ElevenLabs configuration missing"}`},
		{"unconfigured", fakeVoice{err: voice.ErrNotConfigured}, http.StatusInternalServerError, `{"error":"ElevenLabs configuration missing"}`},
		{"upstream", fakeVoice{err: &voice.UpstreamError{StatusCode: 401}}, http.StatusUnauthorized, `{"error":"Failed to get signed URL from ElevenLabs"}`},
		{"transport", fakeVoice{err: errors.New("dial tcp")}, http.StatusInternalServerError, `{"error":"Internal server error"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewServer(svc, fakeRenderer{}, tc.bridge, Options{}, nil).Handler()
			rec := do(t, h, http.MethodGet, "/voice/signed-url", nil)
			require.Equal(t, tc.code, rec.Code)
			require.JSONEq(t, tc.body, rec.Body.String())
		})
	}
}

func TestPostContext(t *testing.T) {
	t.Parallel()

	h := newTestServer(newFakeService(), Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/voice/context", []byte(`{"conversationId":"c1","variables":{"rating":3}}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true,"message":"Context update logged successfully","data":{"context":{"rating":3}}}`,
		rec.Body.String())

	rec = do(t, h, http.MethodPost, "/voice/context", []byte(`{"conversationId":"c1"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, voice.ErrEmptyContext.Error(), decodeBody(t, rec)["error"])

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/voice/context", []byte(`[`)).Code)
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	healthy := newTestServer(newFakeService(), Options{}).Handler()
	require.Equal(t, http.StatusOK, do(t, healthy, http.MethodGet, "/healthz", nil).Code)
	require.Equal(t, http.StatusOK, do(t, healthy, http.MethodGet, "/readyz", nil).Code)

	metricsRec := do(t, healthy, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, metricsRec.Code)
	require.Contains(t, metricsRec.Body.String(), "roast_jobs_in_flight")

	broken := newTestServer(newFakeService(), Options{Readiness: map[string]ReadinessCheck{
		"records": func(context.Context) error { return errors.New("connection refused") },
	}}).Handler()
	rec := do(t, broken, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "connection refused")
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	h := newTestServer(newFakeService(), Options{CORS: CORSConfig{AllowedOrigins: []string{"https://roast.example"}}}).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/roast", nil)
	req.Header.Set("Origin", "https://roast.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "https://roast.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMediaFileServer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "screenshots"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "screenshots", "a.jpg"), []byte("jpeg"), 0o600))

	h := newTestServer(newFakeService(), Options{MediaDir: dir, MediaPrefix: "/media/"}).Handler()
	rec := do(t, h, http.MethodGet, "/media/screenshots/a.jpg", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "jpeg", rec.Body.String())
}

func TestRequestIDPropagation(t *testing.T) {
	t.Parallel()

	h := newTestServer(newFakeService(), Options{}).Handler()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "trace-me")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "trace-me", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := do(t, h, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusBadRequest, statusFor(roast.ErrInvalidInput))
	require.Equal(t, http.StatusNotFound, statusFor(roast.ErrNotFound))
	require.Equal(t, http.StatusRequestTimeout, statusFor(context.DeadlineExceeded))
	require.Equal(t, http.StatusInternalServerError, statusFor(errors.New("x")))
}
