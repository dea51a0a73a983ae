package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/framesift/internal/config"
	"github.com/kikiluvv/framesift/internal/frames"
	"github.com/kikiluvv/framesift/internal/pipeline"
	"github.com/kikiluvv/framesift/internal/provider"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAnalyzer struct {
	result *pipeline.Result
	err    error

	video  pipeline.VideoRequest
	stream pipeline.StreamRequest
	images pipeline.ImageRequest
}

func (a *fakeAnalyzer) AnalyzeVideos(_ context.Context, req pipeline.VideoRequest) (*pipeline.Result, error) {
	a.video = req
	return a.result, a.err
}

func (a *fakeAnalyzer) AnalyzeStreams(_ context.Context, req pipeline.StreamRequest) (*pipeline.Result, error) {
	a.stream = req
	return a.result, a.err
}

func (a *fakeAnalyzer) AnalyzeImages(_ context.Context, req pipeline.ImageRequest) (*pipeline.Result, error) {
	a.images = req
	return a.result, a.err
}

type fakeProvider struct {
	validateErr error
	got         provider.Request
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) PrepareRequest(req provider.Request) (provider.Payload, error) {
	p.got = req
	return req, nil
}

func (p *fakeProvider) MakeRequest(context.Context, provider.Payload) (string, error) {
	return "Two cars in the driveway.", nil
}

func (p *fakeProvider) Validate(context.Context) error { return p.validateErr }

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		Keyframes: []frames.Keyframe{
			{Image: "aGVsbG8=", Label: "Video frame 1", Score: frames.Sentinel},
			{Image: "d29ybGQ=", Label: "Video frame 2", Score: 0.41},
		},
	}
}

func testServer(t *testing.T, analyzer Analyzer, prov provider.Provider) (*Server, *config.Config) {
	cfg := config.Default()
	cfg.Expose.Dir = t.TempDir()
	cfg.Selection.IncludeFilename = true
	cfg.Sources = []config.SourceConfig{{ID: "porch", Name: "Porch", Kind: config.SourceHTTP, URL: "http://cam/snap.jpg"}}
	return New(zerolog.Nop(), cfg, analyzer, prov), cfg
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := testServer(t, &fakeAnalyzer{}, nil)

	rec := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestSources(t *testing.T) {
	s, _ := testServer(t, &fakeAnalyzer{}, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sources":[{"id":"porch","name":"Porch","kind":"http"}]}`, rec.Body.String())
}

func TestAnalyzeVideo(t *testing.T) {
	analyzer := &fakeAnalyzer{result: sampleResult()}
	s, _ := testServer(t, analyzer, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/analyze/video", map[string]any{
		"paths":      []string{"/media/a.mp4"},
		"event_ids":  []string{"evt"},
		"max_frames": 5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, []string{"/media/a.mp4"}, analyzer.video.Paths)
	assert.Equal(t, []string{"evt"}, analyzer.video.EventIDs)
	assert.Equal(t, 5, analyzer.video.MaxFrames)
	assert.True(t, analyzer.video.IncludeFilename, "config default applies when omitted")

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Keyframes, 2)
	assert.Equal(t, "Video frame 2", resp.Keyframes[1].Label)
	assert.NotEmpty(t, resp.RequestID)
	assert.Empty(t, resp.Response)
}

func TestAnalyzeStream(t *testing.T) {
	analyzer := &fakeAnalyzer{result: sampleResult()}
	s, _ := testServer(t, analyzer, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/analyze/stream", map[string]any{
		"source_ids":       []string{"porch"},
		"duration":         "0:10",
		"include_filename": false,
		"expose":           true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 10*time.Second, analyzer.stream.Duration)
	assert.False(t, analyzer.stream.IncludeFilename)
	assert.True(t, analyzer.stream.Expose)

	rec = do(t, s, http.MethodPost, "/api/v1/analyze/stream", map[string]any{
		"source_ids": []string{"porch"},
		"duration":   "soon",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/analyze/stream", map[string]any{"source_ids": []string{"porch"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "duration is required")
}

func TestAnalyzeImagesWithPrompt(t *testing.T) {
	analyzer := &fakeAnalyzer{result: sampleResult()}
	prov := &fakeProvider{}
	s, cfg := testServer(t, analyzer, prov)

	rec := do(t, s, http.MethodPost, "/api/v1/analyze/images", map[string]any{
		"source_ids": []string{"porch"},
		"prompt":     "Describe the scene",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Two cars in the driveway.", resp.Response)
	assert.Equal(t, "Describe the scene", prov.got.Message)
	assert.Equal(t, cfg.Provider.MaxTokens, prov.got.MaxTokens)
	assert.Len(t, prov.got.Keyframes, 2)
}

func TestPromptWithoutProvider(t *testing.T) {
	s, _ := testServer(t, &fakeAnalyzer{result: sampleResult()}, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/analyze/images", map[string]any{
		"paths":  []string{"/x.jpg"},
		"prompt": "Describe",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{frames.BadInput("file x does not exist"), http.StatusBadRequest, "bad_input"},
		{frames.Transient(errors.New("timeout"), "failed to fetch frigate clip 1"), http.StatusBadGateway, "transient"},
		{context.Canceled, http.StatusServiceUnavailable, "cancelled"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		s, _ := testServer(t, &fakeAnalyzer{err: tc.err}, nil)
		rec := do(t, s, http.MethodPost, "/api/v1/analyze/video", map[string]any{"paths": []string{"x"}})
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())

		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body.Error)
		assert.Equal(t, tc.err.Error(), body.Message)
	}
}

func TestInvalidJSON(t *testing.T) {
	s, _ := testServer(t, &fakeAnalyzer{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze/video", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateProvider(t *testing.T) {
	s, _ := testServer(t, &fakeAnalyzer{}, &fakeProvider{})
	rec := do(t, s, http.MethodGet, "/api/v1/providers/validate", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"provider":"fake","status":"ok"}`, rec.Body.String())

	s, _ = testServer(t, &fakeAnalyzer{}, &fakeProvider{validateErr: errors.New("empty api key")})
	rec = do(t, s, http.MethodGet, "/api/v1/providers/validate", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "handshake_failed")

	s, _ = testServer(t, &fakeAnalyzer{}, nil)
	rec = do(t, s, http.MethodGet, "/api/v1/providers/validate", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServesExposedFrames(t *testing.T) {
	s, cfg := testServer(t, &fakeAnalyzer{}, nil)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Expose.Dir, "abcd1234-0.jpg"), []byte("jpeg"), 0644))

	rec := do(t, s, http.MethodGet, "/frames/abcd1234-0.jpg", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg", rec.Body.String())
}

func TestRunStopsOnCancel(t *testing.T) {
	s, cfg := testServer(t, &fakeAnalyzer{}, nil)
	cfg.Server.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
