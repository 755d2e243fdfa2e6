package optimization

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/imageopt/optimizer/internal/pkg/errorhandler"
	"github.com/imageopt/optimizer/internal/pkg/imaging"
	"github.com/imageopt/optimizer/internal/pkg/registry"
	"github.com/imageopt/optimizer/internal/pkg/response"
	"github.com/imageopt/optimizer/internal/pkg/sse"
	"github.com/imageopt/optimizer/internal/pkg/validator"
)

// optimizeParams carries the query-string parameters for /optimize and
// /batch-optimize through struct-tag validation instead of hand-rolled
// range checks.
type optimizeParams struct {
	Width   int    `json:"width" validate:"required,gte=1,lte=8000"`
	Height  int    `json:"height" validate:"omitempty,gte=1,lte=8000"`
	Quality int    `json:"quality" validate:"required,gte=1,lte=100"`
	Format  string `json:"format" validate:"img_format"`
}

const (
	maxSingleFileBytes    = 50 * 1024 * 1024
	maxBatchFilePerBytes  = 10 * 1024 * 1024
	maxBatchFileCount     = 10
	defaultOptimizeWidth  = 800
	defaultOptimizeQuality = 80
)

var downloadFilenamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z]{2,4}$`)

// Handler is the thin HTTP surface over the orchestrator: it validates
// parameters, parses multipart uploads to temp files, and serializes the
// orchestrator's response. It never performs image transforms itself.
type Handler struct {
	service   *Service
	broker    *sse.Broker
	tempDir   string
}

// NewHandler builds a Handler. tempDir is where uploaded files land before
// the worker pool reads them; it must already exist and be writable.
func NewHandler(service *Service, broker *sse.Broker, tempDir string) *Handler {
	return &Handler{service: service, broker: broker, tempDir: tempDir}
}

// Optimize handles POST /image-optimization/optimize.
func (h *Handler) Optimize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxSingleFileBytes); err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusBadRequest, "INVALID_MULTIPART", "failed to parse multipart form", err)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusBadRequest, "MISSING_FILE", ErrMissingFile.Error(), err)
		return
	}
	defer file.Close()

	if header.Size > maxSingleFileBytes {
		errorhandler.HandleError(r.Context(), w, http.StatusBadRequest, "FILE_TOO_LARGE", ErrFileTooLarge.Error(), nil)
		return
	}

	opts, fieldErrors := parseOptimizationOptions(r.URL.Query())
	if fieldErrors != nil {
		errorhandler.LogValidationError(r.Context(), fieldErrors)
		errorhandler.HandleErrorWithDetails(r.Context(), w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", fieldErrors, nil)
		return
	}

	callbacks, err := parseCallbacks(r.FormValue("callbacks"))
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusBadRequest, "INVALID_CALLBACKS", err.Error(), err)
		return
	}

	ref, err := h.stageTempFile(file, header.Filename)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "STAGE_FAILED", "failed to stage upload", err)
		return
	}

	result, err := h.service.AcceptSingle(r.Context(), AcceptSingleRequest{
		File:      *ref,
		Options:   opts,
		Callbacks: callbacks,
		Operation: OperationOptimize,
	})
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "ACCEPT_FAILED", "failed to accept optimization request", err)
		return
	}

	response.OK(w, map[string]interface{}{
		"message":            "Image accepted for optimization",
		"originalSize":       result.OriginalSize,
		"data":               result.NewFilePath,
		"downloadUrl":        result.DownloadURL,
		"callbacksScheduled": result.CallbacksScheduled,
		"optimizationId":     result.OptimizationID,
	})
}

// BatchOptimize handles POST /image-optimization/batch-optimize.
func (h *Handler) BatchOptimize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxBatchFilePerBytes * maxBatchFileCount); err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusBadRequest, "INVALID_MULTIPART", "failed to parse multipart form", err)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		errorhandler.HandleError(r.Context(), w, http.StatusBadRequest, "MISSING_FILE", ErrMissingFile.Error(), nil)
		return
	}
	if len(files) > maxBatchFileCount {
		errorhandler.HandleError(r.Context(), w, http.StatusBadRequest, "TOO_MANY_FILES", ErrTooManyBatchFiles.Error(), nil)
		return
	}

	opts, fieldErrors := parseOptimizationOptions(r.URL.Query())
	if fieldErrors != nil {
		errorhandler.LogValidationError(r.Context(), fieldErrors)
		errorhandler.HandleErrorWithDetails(r.Context(), w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", fieldErrors, nil)
		return
	}
	callbacks, err := parseCallbacks(r.FormValue("callbacks"))
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusBadRequest, "INVALID_CALLBACKS", err.Error(), err)
		return
	}

	refs := make([]registry.FileRef, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxBatchFilePerBytes {
			errorhandler.HandleError(r.Context(), w, http.StatusBadRequest, "FILE_TOO_LARGE", fmt.Sprintf("%s: %s", fh.Filename, ErrFileTooLarge.Error()), nil)
			return
		}
		f, err := fh.Open()
		if err != nil {
			errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "STAGE_FAILED", "failed to open uploaded file", err)
			return
		}
		ref, err := h.stageTempFile(f, fh.Filename)
		f.Close()
		if err != nil {
			errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "STAGE_FAILED", "failed to stage upload", err)
			return
		}
		refs = append(refs, *ref)
	}

	result, err := h.service.AcceptBatch(r.Context(), AcceptBatchRequest{
		Files:     refs,
		Options:   opts,
		Callbacks: callbacks,
	})
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "ACCEPT_FAILED", "failed to accept batch optimization request", err)
		return
	}

	response.OK(w, map[string]interface{}{
		"message":            "Batch accepted for optimization",
		"count":              result.Count,
		"callbacksScheduled": result.CallbacksScheduled,
		"optimizationId":     result.OptimizationID,
		"results":            result.Results,
	})
}

// BlurPlaceholder handles POST /image-optimization/blur-placeholder.
// Unlike Optimize/BatchOptimize this one runs synchronously: the caller is
// waiting on a tiny, fast-to-produce preview, not a full-size artifact.
func (h *Handler) BlurPlaceholder(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxSingleFileBytes); err != nil {
		response.BadRequest(w, "failed to parse multipart form")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		response.BadRequest(w, ErrMissingFile.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		response.InternalErrorWithError(w, err)
		return
	}

	q := r.URL.Query()
	width := queryInt(q, "width", 40)
	height := queryInt(q, "height", 0)
	blurRadius := queryInt(q, "blurRadius", 15)
	quality := queryInt(q, "quality", 15)
	mobileOptimized := q.Get("mobileOptimized") == "true"

	if width < 10 || width > 256 {
		response.BadRequest(w, ErrInvalidDimensions.Error())
		return
	}
	if blurRadius < 1 || blurRadius > 50 {
		response.BadRequest(w, "optimization: blurRadius out of range")
		return
	}
	if quality < 1 || quality > 50 {
		response.BadRequest(w, ErrInvalidQuality.Error())
		return
	}

	out, err := imaging.BlurPlaceholder(data, imaging.BlurPlaceholderOptions{
		Width:           width,
		Height:          height,
		BlurRadius:      float64(blurRadius),
		Quality:         quality,
		MobileOptimized: mobileOptimized,
	})
	if err != nil {
		response.Error(w, http.StatusUnprocessableEntity, "TRANSFORM_FAILED", err.Error())
		return
	}

	response.OK(w, map[string]interface{}{
		"originalSize":  len(data),
		"optimizedSize": len(out),
		"data":          base64.StdEncoding.EncodeToString(out),
	})
}

// SubscribeSSE handles GET /image-optimization-sse/subscribe/:id.
func (h *Handler) SubscribeSSE(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" {
		response.BadRequest(w, sse.ErrEmptyID.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalError(w)
		return
	}

	events, err := h.broker.Subscribe(id)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, _ := json.Marshal(ev)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// Download handles GET /image-optimization/download/:filename — a legacy
// path serving artifacts directly from the temp directory; not required
// once BlobSink is object-store-backed, but kept for local/offline use.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request, filename string) {
	if !downloadFilenamePattern.MatchString(filename) {
		response.BadRequest(w, "invalid filename")
		return
	}

	path := filepath.Join(h.tempDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		response.NotFound(w, "file not found")
		return
	}

	ext := strings.ToLower(filepath.Ext(filename))
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (h *Handler) stageTempFile(src io.Reader, originalName string) (*registry.FileRef, error) {
	tmp, err := os.CreateTemp(h.tempDir, uuid.New().String()+"-*"+filepath.Ext(originalName))
	if err != nil {
		return nil, fmt.Errorf("optimization: failed to create temp file: %w", err)
	}
	defer tmp.Close()

	written, err := io.Copy(tmp, src)
	if err != nil {
		return nil, fmt.Errorf("optimization: failed to stage upload: %w", err)
	}

	return &registry.FileRef{
		Path:         tmp.Name(),
		OriginalName: originalName,
		Size:         written,
	}, nil
}

// parseOptimizationOptions validates query parameters against optimizeParams'
// struct tags and returns a field-error map on failure rather than a single
// sentinel, so the caller can surface per-field detail via errorhandler.
func parseOptimizationOptions(q map[string][]string) (registry.OptimizationOptions, map[string]string) {
	width := queryIntValues(q, "width", defaultOptimizeWidth)
	height := queryIntValues(q, "height", 0)
	quality := queryIntValues(q, "quality", defaultOptimizeQuality)
	format := firstValue(q, "format", "jpeg")

	params := optimizeParams{Width: width, Height: height, Quality: quality, Format: format}
	if fieldErrors := validator.Validate(&params); fieldErrors != nil {
		return registry.OptimizationOptions{}, fieldErrors
	}

	return registry.OptimizationOptions{
		Width:   width,
		Height:  height,
		Quality: quality,
		Format:  format,
	}, nil
}

// parseCallbacks decodes the callbacks form field. The client library this
// ships alongside is known to mangle multi-callback payloads into a bare
// object or a "},{"-joined concatenation instead of a proper JSON array;
// this repairs both shapes before falling back to strict JSON parsing.
func parseCallbacks(raw string) ([]registry.CallbackSink, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	repaired := raw
	if strings.HasPrefix(repaired, "{") && strings.HasSuffix(repaired, "}") {
		repaired = "[" + repaired + "]"
	}
	if strings.Contains(repaired, "},{") && !strings.HasPrefix(repaired, "[") {
		repaired = "[" + repaired + "]"
	}

	var raws []json.RawMessage
	if err := json.Unmarshal([]byte(repaired), &raws); err != nil {
		return nil, ErrMalformedCallbacks
	}

	sinks := make([]registry.CallbackSink, 0, len(raws))
	for _, r := range raws {
		var sink registry.CallbackSink
		if err := json.Unmarshal(r, &sink); err != nil {
			return nil, ErrMalformedCallbacks
		}
		if sink.Method == "" {
			sink.Method = http.MethodPost
		}
		sinks = append(sinks, sink)
	}
	return sinks, nil
}

func queryInt(q interface{ Get(string) string }, key string, fallback int) int {
	raw := q.Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryIntValues(q map[string][]string, key string, fallback int) int {
	vals, ok := q[key]
	if !ok || len(vals) == 0 || vals[0] == "" {
		return fallback
	}
	v, err := strconv.Atoi(vals[0])
	if err != nil {
		return fallback
	}
	return v
}

func firstValue(q map[string][]string, key, fallback string) string {
	vals, ok := q[key]
	if !ok || len(vals) == 0 || vals[0] == "" {
		return fallback
	}
	return vals[0]
}
