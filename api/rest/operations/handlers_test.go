package operations

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/docforge/server/internal/admission"
	"codeberg.org/docforge/server/internal/artifact"
	"codeberg.org/docforge/server/internal/auth"
	"codeberg.org/docforge/server/internal/config"
	"codeberg.org/docforge/server/internal/errors"
	"codeberg.org/docforge/server/internal/invoker"
	"codeberg.org/docforge/server/internal/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	result *pipeline.Result
	err    error
	got    pipeline.Request
	calls  int
}

func (f *fakeRunner) Run(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.calls++
	f.got = req
	return f.result, f.err
}

func newRouter(t *testing.T, runner Runner) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog, err := invoker.NewCatalog(invoker.DefaultOperations())
	require.NoError(t, err)

	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(auth.IdentityMiddleware())
	RegisterRoutes(api, catalog, config.DefaultPolicies(), runner, nil)

	return r
}

func upload(t *testing.T, r *gin.Engine, op string, fields map[string]string, filename, body string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(body))
		require.NoError(t, err)
	}

	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}

	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/operations/"+op, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(auth.ClientIDHeader, "tester")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func decision() *admission.Decision {
	return &admission.Decision{
		Allowed:   true,
		Tier:      config.TierFree,
		Limit:     5,
		Remaining: 4,
		Window:    time.Minute,
		ResetAt:   time.Unix(1700000060, 0),
	}
}

func TestRunOperation_DirectStreamsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "encrypted.pdf")
	require.NoError(t, os.WriteFile(path, []byte("locked-pdf"), 0o600))

	runner := &fakeRunner{result: &pipeline.Result{
		Stage:    pipeline.StagePackaged,
		Decision: *decision(),
		File:     &pipeline.DirectFile{Path: path, DownloadName: "encrypted.pdf", Size: 10},
	}}

	w := upload(t, newRouter(t, runner), "encrypt", map[string]string{"password": "pw"}, "in.pdf", "%PDF")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "locked-pdf", w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=encrypted.pdf`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1700000060", w.Header().Get("X-RateLimit-Reset"))

	assert.Equal(t, "client:tester", runner.got.CallerID)
	assert.Equal(t, config.TierFree, runner.got.Tier)
	assert.Equal(t, "in.pdf", runner.got.Filename)
	assert.Equal(t, int64(4), runner.got.Size)
	assert.Equal(t, map[string]string{"password": "pw"}, runner.got.Params)
}

func TestRunOperation_StagedReturnsArtifact(t *testing.T) {
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	runner := &fakeRunner{result: &pipeline.Result{
		Stage:    pipeline.StagePackaged,
		Decision: *decision(),
		Artifact: &artifact.Artifact{
			ID:           "4b8a9c1e-0d7f-4e36-9a51-2f0c6d8e1b23",
			DownloadName: "images.zip",
			FileCount:    3,
			Size:         2048,
			ExpiresAt:    expires,
		},
	}}

	w := upload(t, newRouter(t, runner), "extract-images", nil, "scan.pdf", "%PDF")

	require.Equal(t, http.StatusOK, w.Code)

	var resp StagedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "4b8a9c1e-0d7f-4e36-9a51-2f0c6d8e1b23", resp.ArtifactID)
	assert.Equal(t, "/artifact/4b8a9c1e-0d7f-4e36-9a51-2f0c6d8e1b23", resp.DownloadURL)
	assert.Equal(t, 3, resp.FileCount)
	assert.True(t, expires.Equal(resp.ExpiresAt))
}

func TestRunOperation_UnknownOperation(t *testing.T) {
	runner := &fakeRunner{}

	w := upload(t, newRouter(t, runner), "teleport", nil, "a.pdf", "x")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, runner.calls)
}

func TestRunOperation_MissingFile(t *testing.T) {
	runner := &fakeRunner{}

	w := upload(t, newRouter(t, runner), "compress", map[string]string{"quality": "ebook"}, "", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), errors.CodeInvalidInput)
	assert.Zero(t, runner.calls)
}

func TestRunOperation_BadProgressID(t *testing.T) {
	runner := &fakeRunner{}

	w := upload(t, newRouter(t, runner), "compress", map[string]string{"progress_id": "../../etc"}, "a.pdf", "x")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, runner.calls)
}

func TestRunOperation_ProgressIDIsNotAParam(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	runner := &fakeRunner{result: &pipeline.Result{
		File: &pipeline.DirectFile{Path: path, DownloadName: "out.pdf", Size: 1},
	}}

	w := upload(t, newRouter(t, runner), "compress", map[string]string{
		"progress_id": "4b8a9c1e-0d7f-4e36-9a51-2f0c6d8e1b23",
		"quality":     "screen",
	}, "a.pdf", "x")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"quality": "screen"}, runner.got.Params)
}

func TestRunOperation_ErrorMapping(t *testing.T) {
	rateLimited := decision()
	rateLimited.Allowed = false
	rateLimited.Reason = admission.ReasonRateLimited
	rateLimited.Remaining = 0
	rateLimited.RetryAfter = 42 * time.Second

	quota := decision()
	quota.Allowed = false
	quota.Reason = admission.ReasonQuotaExceeded
	quota.Used = 10
	quota.MaxValue = 10

	tooLarge := decision()
	tooLarge.Allowed = false
	tooLarge.Reason = admission.ReasonPayloadTooLarge
	tooLarge.MaxValue = 10 << 20

	feature := decision()
	feature.Allowed = false
	feature.Reason = admission.ReasonFeatureNotAvailable

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid input", &pipeline.Error{Code: pipeline.CodeInvalidInput, Message: "password: is required"}, http.StatusBadRequest, errors.CodeInvalidInput},
		{"rate limited", &pipeline.Error{Code: string(admission.ReasonRateLimited), Decision: rateLimited}, http.StatusTooManyRequests, errors.CodeRateLimited},
		{"quota", &pipeline.Error{Code: string(admission.ReasonQuotaExceeded), Decision: quota}, http.StatusForbidden, errors.CodeQuotaExceeded},
		{"too large", &pipeline.Error{Code: string(admission.ReasonPayloadTooLarge), Decision: tooLarge}, http.StatusBadRequest, errors.CodePayloadTooLarge},
		{"feature", &pipeline.Error{Code: string(admission.ReasonFeatureNotAvailable), Decision: feature}, http.StatusForbidden, errors.CodeFeatureNotAvailable},
		{"failed", &pipeline.Error{Code: pipeline.CodeTransformationFailed, Err: invoker.ErrTimeout, Decision: decision()}, http.StatusInternalServerError, errors.CodeTransformationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := upload(t, newRouter(t, &fakeRunner{err: tt.err}), "compress", nil, "a.pdf", "x")

			assert.Equal(t, tt.status, w.Code)

			var resp errors.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error)
			assert.NotContains(t, w.Body.String(), "TIMEOUT")
		})
	}
}

func TestRunOperation_RateLimitedHeaders(t *testing.T) {
	d := decision()
	d.Allowed = false
	d.Reason = admission.ReasonRateLimited
	d.Remaining = 0
	d.RetryAfter = 1500 * time.Millisecond

	w := upload(t, newRouter(t, &fakeRunner{err: &pipeline.Error{Code: string(admission.ReasonRateLimited), Decision: d}}), "compress", nil, "a.pdf", "x")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	var resp errors.LimitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(5), resp.Limit)
	assert.Equal(t, 60, resp.WindowSeconds)
	assert.Equal(t, "free", resp.Tier)
}

func TestListOperations(t *testing.T) {
	r := newRouter(t, &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operations", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "free", resp.Tier)

	available := map[string]bool{}
	for _, op := range resp.Operations {
		available[op.Name] = op.Available
	}

	assert.True(t, available["compress"])
	assert.True(t, available["extract-images"])
	assert.False(t, available["extract-tables"])
	assert.False(t, available["image-to-text"])
}
