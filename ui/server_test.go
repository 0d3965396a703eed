package ui

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rnadash/app"
	"rnadash/internal"
	"rnadash/internal/api"
	"rnadash/internal/config"
	"rnadash/internal/engine"
	"rnadash/internal/session"
	"rnadash/internal/views"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Port: "0", GinMode: "test"},
		Upload: config.UploadConfig{
			MaxUploadBytes: config.DefaultMaxUploadBytes,
			TempDir:        t.TempDir(),
		},
	}
	logger := internal.NewLogger(internal.LogLevelError)
	store := session.NewStore()
	eng := engine.New()
	hub := api.NewProgressHub()
	analysis := app.NewAnalysisService(eng, store, hub, logger)
	viewSvc := views.New(store, eng)

	srv, err := NewServer(cfg, analysis, viewSvc, hub, logger)
	require.NoError(t, err)
	return srv
}

func multipartUpload(t *testing.T, countsName, countsBody, samplesName, samplesBody string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("counts", countsName)
	require.NoError(t, err)
	_, err = io.Copy(part, strings.NewReader(countsBody))
	require.NoError(t, err)

	part, err = w.CreateFormFile("samples", samplesName)
	require.NoError(t, err)
	_, err = io.Copy(part, strings.NewReader(samplesBody))
	require.NoError(t, err)

	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

const testCounts = `gene,S1,S2,S3,S4,S5,S6
G1,10,12,11,50,52,49
G2,40,38,42,12,10,11
G3,100,105,98,101,99,103
`

const testSamples = `sample,condition
S1,control
S2,control
S3,control
S4,treated
S5,treated
S6,treated
`

func TestIndexRenders(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "RNA-seq")
}

func TestHelpRenders(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/help", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Counts matrix")
}

func TestUploadRejectsSpreadsheet(t *testing.T) {
	srv := newTestServer(t)
	body, contentType := multipartUpload(t, "counts.xlsx", "binary junk", "samples.csv", testSamples)

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/run", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "UNSUPPORTED_FORMAT", resp["code"])
	assert.Contains(t, resp["error"], "xlsx")
}

func TestUploadRequiresBothFiles(t *testing.T) {
	srv := newTestServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("counts", "counts.csv")
	require.NoError(t, err)
	_, err = io.Copy(part, strings.NewReader(testCounts))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/run", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "samples file is required")
}

func TestPlotsBeforeFirstRun(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{
		"/api/plots/volcano", "/api/plots/heatmap", "/api/plots/pca",
		"/api/plots/distance", "/api/plots/ma", "/api/plots/dispersion",
		"/api/results/table", "/api/results/summary",
	} {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusOK, rec.Code, path)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), path)
		assert.Equal(t, "no_data", resp["status"], path)
	}
}

func TestFullRunThroughHTTP(t *testing.T) {
	srv := newTestServer(t)
	body, contentType := multipartUpload(t, "counts.csv", testCounts, "samples.csv", testSamples)

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/run", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	waitForGeneration(t, srv, 1)

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results/table", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Contrast string `json:"contrast"`
		Total    int    `json:"total"`
		Rows     []struct {
			Gene string `json:"gene"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, "treated vs control", page.Contrast)
	assert.Equal(t, 3, page.Total)

	// Every plot endpoint now serves data.
	for _, path := range []string{
		"/api/plots/volcano", "/api/plots/heatmap", "/api/plots/pca",
		"/api/plots/distance", "/api/plots/ma", "/api/plots/dispersion",
	} {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotContains(t, rec.Body.String(), "no_data", path)
	}

	// Summary reports the contrast alongside per-condition sample counts.
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var summary struct {
		Contrast   string         `json:"contrast"`
		Conditions map[string]int `json:"conditions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "treated vs control", summary.Contrast)
	assert.Equal(t, map[string]int{"control": 3, "treated": 3}, summary.Conditions)

	// CSV export carries all genes.
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results/export.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "gene,"))

	// XLSX export answers with a workbook payload.
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/results/export.xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestRunMismatchKeepsPlaceholders(t *testing.T) {
	srv := newTestServer(t)

	mismatchSamples := testSamples + "S7,treated\n"
	body, contentType := multipartUpload(t, "counts.csv", testCounts, "samples.csv", mismatchSamples)

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/run", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	waitForIdle(t, srv)

	status := getStatus(t, srv)
	assert.Equal(t, "SAMPLE_MISMATCH", status.LastErrorCode)
	assert.Contains(t, status.LastError, "S7")

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/plots/volcano", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "no_data")
}

func TestCancelWithoutRun(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analysis/cancel", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func getStatus(t *testing.T, srv *Server) app.RunStatus {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analysis/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st app.RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	return st
}

func waitForGeneration(t *testing.T, srv *Server, gen uint64) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if st := getStatus(t, srv); st.Generation >= gen && !st.Running {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run never committed")
}

func waitForIdle(t *testing.T, srv *Server) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if st := getStatus(t, srv); !st.Running {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run never finished")
}
