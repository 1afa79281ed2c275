package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instantwaste/formscan/internal/ocr"
	"github.com/instantwaste/formscan/internal/pipeline"
	"github.com/instantwaste/formscan/internal/session"
)

// formEngine returns a fixed read of a small but complete waste form:
// a completed-waste table and a five-column raw-waste table.
func formEngine() ocr.Engine {
	fragments := []ocr.Fragment{
		{Text: "ITEM", X: 100, Y: 100, Width: 60, Height: 20},
		{Text: "COUNT", X: 400, Y: 100, Width: 60, Height: 20},
		{Text: "Big", X: 110, Y: 200, Width: 40, Height: 20},
		{Text: "Mac", X: 155, Y: 200, Width: 40, Height: 20},
		{Text: "4", X: 420, Y: 205, Width: 20, Height: 20},

		{Text: "ITEM", X: 1100, Y: 100, Width: 60, Height: 20},
		{Text: "SIZE", X: 1300, Y: 100, Width: 60, Height: 20},
		{Text: "OPEN", X: 1450, Y: 100, Width: 60, Height: 20},
		{Text: "SWING", X: 1600, Y: 100, Width: 60, Height: 20},
		{Text: "CLOSE", X: 1750, Y: 100, Width: 60, Height: 20},
		{Text: "Reg", X: 1100, Y: 200, Width: 40, Height: 20},
		{Text: "Bun", X: 1150, Y: 200, Width: 40, Height: 20},
		{Text: "5", X: 1460, Y: 200, Width: 20, Height: 20},
		{Text: "12", X: 1610, Y: 200, Width: 30, Height: 20},
		{Text: "7", X: 1750, Y: 200, Width: 15, Height: 20},
	}
	return ocr.EngineFunc(func(ctx context.Context, img image.Image) ([]ocr.Fragment, error) {
		return fragments, nil
	})
}

func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := Config{
		CORSOrigin:     "*",
		MaxUploadMB:    10,
		TimeoutSec:     30,
		SessionTTL:     time.Minute,
		TempDir:        t.TempDir(),
		PipelineConfig: pipeline.DefaultConfig(),
		Engine:         formEngine(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewServer(cfg)
	require.NoError(t, err)

	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		ts.Close()
		_ = s.Close()
	})
	return s, ts
}

// pngUpload builds a multipart body with a small white PNG as the "image"
// field.
func pngUpload(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2000, 600))
	for y := 0; y < 600; y++ {
		for x := 0; x < 2000; x++ {
			img.Set(x, y, color.White)
		}
	}
	var encoded bytes.Buffer
	require.NoError(t, png.Encode(&encoded, img))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "form.png")
	require.NoError(t, err)
	_, err = part.Write(encoded.Bytes())
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestHealthHandler(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Zero(t, health.Sessions)
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/health", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t, func(c *Config) { c.CORSOrigin = "https://app.example.com" })

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/scan", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestItemsHandler(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/items")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var items ItemsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	assert.Contains(t, items.CompletedWaste, "Big Mac")
	assert.Contains(t, items.RawWaste, "Reg Bun")
}

func TestScanHandler(t *testing.T) {
	_, ts := newTestServer(t, nil)

	body, contentType := pngUpload(t)
	resp, err := http.Post(ts.URL+"/scan", contentType, body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var scan ScanResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&scan))
	require.True(t, scan.Success)
	require.NotNil(t, scan.Result)
	require.Len(t, scan.Result.Tables, 2)
	assert.Equal(t, "Big Mac", scan.Result.Tables[0].Rows[0].ItemName)
	assert.Equal(t, "Reg Bun", scan.Result.Tables[1].Rows[0].ItemName)
	assert.True(t, scan.Result.Validation.Valid)
}

func TestScanHandler_NoFile(t *testing.T) {
	_, ts := newTestServer(t, nil)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("note", "no image here"))
	require.NoError(t, writer.Close())

	resp, err := http.Post(ts.URL+"/scan", writer.FormDataContentType(), body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var scan ScanResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&scan))
	assert.False(t, scan.Success)
	assert.Contains(t, scan.Error, "No image file")
}

func TestScanHandler_InvalidImage(t *testing.T) {
	_, ts := newTestServer(t, nil)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "form.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("not an image"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	resp, err := http.Post(ts.URL+"/scan", writer.FormDataContentType(), body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// pollUntilComplete polls the progress endpoint until the session reaches a
// terminal state.
func pollUntilComplete(t *testing.T, ts *httptest.Server, id string) ProgressResponse {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.URL + "/scan/progress?session=" + id)
		require.NoError(t, err)
		var progress ProgressResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&progress))
		_ = resp.Body.Close()

		if progress.Status == string(session.StatusComplete) || progress.Status == string(session.StatusFailed) {
			return progress
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session never finished")
	return ProgressResponse{}
}

func TestAsyncScanFlow(t *testing.T) {
	_, ts := newTestServer(t, nil)

	body, contentType := pngUpload(t)
	resp, err := http.Post(ts.URL+"/scan/async", contentType, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var async AsyncScanResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&async))
	_ = resp.Body.Close()
	require.NotEmpty(t, async.SessionID)
	assert.Equal(t, string(session.StatusPending), async.Status)

	progress := pollUntilComplete(t, ts, async.SessionID)
	require.Equal(t, string(session.StatusComplete), progress.Status)
	assert.Equal(t, 100, progress.Percent)

	// Pick the result up.
	resp, err = http.Get(ts.URL + "/scan/result?session=" + async.SessionID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var scan ScanResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&scan))
	_ = resp.Body.Close()
	require.True(t, scan.Success)
	require.NotNil(t, scan.Result)
	assert.Len(t, scan.Result.Tables, 2)

	// A result can be picked up exactly once.
	resp, err = http.Get(ts.URL + "/scan/result?session=" + async.SessionID)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAsyncScan_FailurePropagates(t *testing.T) {
	_, ts := newTestServer(t, func(c *Config) {
		c.Engine = ocr.EngineFunc(func(ctx context.Context, img image.Image) ([]ocr.Fragment, error) {
			return nil, context.DeadlineExceeded
		})
	})

	body, contentType := pngUpload(t)
	resp, err := http.Post(ts.URL+"/scan/async", contentType, body)
	require.NoError(t, err)
	var async AsyncScanResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&async))
	_ = resp.Body.Close()

	progress := pollUntilComplete(t, ts, async.SessionID)
	require.Equal(t, string(session.StatusFailed), progress.Status)
	assert.NotEmpty(t, progress.Error)

	resp, err = http.Get(ts.URL + "/scan/result?session=" + async.SessionID)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestResultHandler_NotReadyWhileRunning(t *testing.T) {
	release := make(chan struct{})
	_, ts := newTestServer(t, func(c *Config) {
		c.Engine = ocr.EngineFunc(func(ctx context.Context, img image.Image) ([]ocr.Fragment, error) {
			<-release
			return nil, nil
		})
	})

	body, contentType := pngUpload(t)
	resp, err := http.Post(ts.URL+"/scan/async", contentType, body)
	require.NoError(t, err)
	var async AsyncScanResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&async))
	_ = resp.Body.Close()

	// Asking for the result mid-scan is not-found, and must not consume
	// the session.
	resp, err = http.Get(ts.URL + "/scan/result?session=" + async.SessionID)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	close(release)
	progress := pollUntilComplete(t, ts, async.SessionID)
	require.Equal(t, string(session.StatusComplete), progress.Status)

	resp, err = http.Get(ts.URL + "/scan/result?session=" + async.SessionID)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProgressHandler_BadRequests(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/scan/progress")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/scan/progress?session=unknown")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmitHandler(t *testing.T) {
	_, ts := newTestServer(t, nil)

	payload := pipeline.ScanResult{
		Tables: []pipeline.WasteTable{{
			Name: "Table_1_COMPLETED_WASTE",
			Type: "COMPLETED_WASTE_2COL",
			Rows: []pipeline.WasteRow{{
				ItemName: "Big Mac",
				Count:    &pipeline.FieldData{Value: "4"},
			}},
		}},
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/scan/submit", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var submit SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submit))
	assert.True(t, submit.Accepted)
	assert.Equal(t, 1, submit.Rows)
}

func TestSubmitHandler_RejectsNonNumeric(t *testing.T) {
	_, ts := newTestServer(t, nil)

	payload := pipeline.ScanResult{
		Tables: []pipeline.WasteTable{{
			Name: "Table_1_COMPLETED_WASTE",
			Rows: []pipeline.WasteRow{{
				ItemName: "Big Mac",
				Count:    &pipeline.FieldData{Value: "four"},
			}},
		}},
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/scan/submit", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var submit SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submit))
	assert.False(t, submit.Accepted)
	require.Len(t, submit.Errors, 1)
	assert.Contains(t, submit.Errors[0], `"four"`)
}

func TestSubmitHandler_WarnsOnImplausibleCount(t *testing.T) {
	_, ts := newTestServer(t, nil)

	payload := pipeline.ScanResult{
		Tables: []pipeline.WasteTable{{
			Name: "Table_1_COMPLETED_WASTE",
			Rows: []pipeline.WasteRow{{
				ItemName: "Big Mac",
				Count:    &pipeline.FieldData{Value: "1500"},
			}},
		}},
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/scan/submit", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var submit SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submit))
	assert.True(t, submit.Accepted)
	require.Len(t, submit.Warnings, 1)
	assert.Contains(t, submit.Warnings[0], "implausibly large")
}

func TestSubmitHandler_BadPayload(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/scan/submit", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	_, ts := newTestServer(t, func(c *Config) { c.RequestsPerMinute = 1 })

	body, contentType := pngUpload(t)
	resp, err := http.Post(ts.URL+"/scan", contentType, body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, contentType = pngUpload(t)
	resp, err = http.Post(ts.URL+"/scan", contentType, body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "requests_per_minute", resp.Header.Get("X-RateLimit-Type"))
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
