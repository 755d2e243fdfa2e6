package optimization

import (
	"bufio"
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/imageopt/optimizer/internal/pkg/blobstore"
	"github.com/imageopt/optimizer/internal/pkg/callback"
	"github.com/imageopt/optimizer/internal/pkg/registry"
	"github.com/imageopt/optimizer/internal/pkg/sse"
	"github.com/imageopt/optimizer/internal/pkg/ttlstore"
	"github.com/imageopt/optimizer/internal/pkg/workerpool"
)

func jpegFixture(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 48; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 5), G: uint8(y * 5), B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to build jpeg fixture: %v", err)
	}
	return buf.Bytes()
}

func multipartOptimizeBody(t *testing.T, fieldName, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile(fieldName, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write multipart part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return buf, w.FormDataContentType()
}

func readSSEField(t *testing.T, scanner *bufio.Scanner, prefix string, deadline time.Time) string {
	t.Helper()
	for time.Now().Before(deadline) && scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, prefix) {
			return strings.TrimPrefix(line, prefix)
		}
	}
	t.Fatalf("timed out waiting for SSE line with prefix %q", prefix)
	return ""
}

// TestOptimizeEndToEndAcceptProcessAndSubscribe drives the real HTTP surface:
// it posts a multipart image to /optimize, then opens a real SSE connection
// and reads the completion event framed over the wire.
func TestOptimizeEndToEndAcceptProcessAndSubscribe(t *testing.T) {
	store := ttlstore.New()
	reg := registry.New(store, time.Hour)
	pool := workerpool.New(workerpool.DefaultConfig())
	broker := sse.New()
	notifier := callback.New()
	sink := blobstore.NewMemorySink("/image-optimization/download")
	service := NewService(reg, pool, broker, notifier, sink, nil)
	handler := NewHandler(service, broker, t.TempDir())

	r := chi.NewRouter()
	r.Mount("/image-optimization", handler.Routes())
	r.Mount("/image-optimization-sse", handler.SSERoutes())

	ts := httptest.NewServer(r)
	defer ts.Close()

	body, contentType := multipartOptimizeBody(t, "image", "photo.jpg", jpegFixture(t))
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/image-optimization/optimize?width=40&quality=70&format=jpeg", body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("optimize request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var accepted struct {
		OptimizationID string `json:"optimizationId"`
		DownloadUrl    string `json:"downloadUrl"`
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode accept response: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, &accepted); err != nil {
		t.Fatalf("decode accept data: %v", err)
	}
	if accepted.OptimizationID == "" {
		t.Fatal("expected a non-empty optimizationId")
	}

	sseReq, err := http.NewRequest(http.MethodGet, ts.URL+"/image-optimization-sse/subscribe/"+accepted.OptimizationID, nil)
	if err != nil {
		t.Fatalf("NewRequest sse: %v", err)
	}
	sseResp, err := http.DefaultClient.Do(sseReq)
	if err != nil {
		t.Fatalf("subscribe request: %v", err)
	}
	defer sseResp.Body.Close()
	if sseResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for subscribe, got %d", sseResp.StatusCode)
	}

	scanner := bufio.NewScanner(sseResp.Body)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		eventLine := readSSEField(t, scanner, "event: ", deadline)
		dataLine := readSSEField(t, scanner, "data: ", deadline)
		if eventLine == string(sse.EventComplete) {
			if !strings.Contains(dataLine, accepted.OptimizationID) {
				t.Fatalf("expected complete event to reference optimization id, got %s", dataLine)
			}
			return
		}
		if eventLine == string(sse.EventError) {
			t.Fatalf("unexpected error event: %s", dataLine)
		}
	}
	t.Fatal("timed out waiting for complete event over SSE")
}
