// Package optimization wires the TTL-backed context registry, path minter,
// image transformer, worker pool, SSE broker, callback notifier and blob
// sink into the single entry point the HTTP surface calls: accept a file,
// mint its destination, persist the request context, answer synchronously,
// then run the transform off the request thread and fan out on
// completion.
package optimization

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/imageopt/optimizer/internal/pkg/blobstore"
	"github.com/imageopt/optimizer/internal/pkg/callback"
	"github.com/imageopt/optimizer/internal/pkg/imaging"
	"github.com/imageopt/optimizer/internal/pkg/pathminter"
	"github.com/imageopt/optimizer/internal/pkg/queue"
	"github.com/imageopt/optimizer/internal/pkg/registry"
	"github.com/imageopt/optimizer/internal/pkg/sse"
	"github.com/imageopt/optimizer/internal/pkg/workerpool"
)

// Service is the Optimization Orchestrator.
type Service struct {
	registry *registry.Registry
	pool     *workerpool.Pool
	broker   *sse.Broker
	notifier *callback.Notifier
	sink     blobstore.BlobSink
	queue    *queue.Client
}

// NewService wires the orchestrator's collaborators. queue may be nil or
// disabled; every call site treats a disabled queue as a no-op.
func NewService(reg *registry.Registry, pool *workerpool.Pool, broker *sse.Broker, notifier *callback.Notifier, sink blobstore.BlobSink, q *queue.Client) *Service {
	return &Service{registry: reg, pool: pool, broker: broker, notifier: notifier, sink: sink, queue: q}
}

// AcceptSingle mints a destination path, persists the request context,
// returns synchronously, and dispatches the transform to the worker pool.
func (s *Service) AcceptSingle(ctx context.Context, req AcceptSingleRequest) (AcceptResult, error) {
	id := uuid.New().String()
	format := req.Options.Format
	if format == "" {
		format = "jpeg"
	}
	newFilePath := pathminter.Mint(format)

	file := req.File
	params := s.registry.SetControllerParams(id, registry.ControllerParams{
		File:        &file,
		Options:     req.Options,
		Callbacks:   req.Callbacks,
		NewFilePath: newFilePath,
	})

	s.dispatchSingle(id, params, req.Operation, req.WatermarkText)

	if s.queue.Enabled() {
		s.queue.Enqueue(ctx, queue.Job{OptimizationID: id, NewFilePath: newFilePath, AcceptedAt: time.Now()})
	}

	return AcceptResult{
		OptimizationID:     id,
		OriginalSize:       file.Size,
		NewFilePath:        newFilePath,
		DownloadURL:        s.sink.URL(newFilePath),
		CallbacksScheduled: len(req.Callbacks),
	}, nil
}

// AcceptBatch mints one destination path per file and dispatches a
// submitMany to the worker pool, uploads under each file's minted path, and
// one consolidated callback at the end.
func (s *Service) AcceptBatch(ctx context.Context, req AcceptBatchRequest) (AcceptBatchResult, error) {
	id := uuid.New().String()
	format := req.Options.Format
	if format == "" {
		format = "jpeg"
	}

	newFilePaths := make([]string, len(req.Files))
	for i := range req.Files {
		newFilePaths[i] = pathminter.Mint(format)
	}

	files := make([]*registry.FileRef, len(req.Files))
	for i := range req.Files {
		f := req.Files[i]
		files[i] = &f
	}

	params := s.registry.SetControllerParams(id, registry.ControllerParams{
		Files:        files,
		Options:      req.Options,
		Callbacks:    req.Callbacks,
		NewFilePaths: newFilePaths,
	})

	results := make([]BatchFileAccept, len(req.Files))
	for i, f := range req.Files {
		results[i] = BatchFileAccept{
			OriginalName: f.OriginalName,
			NewFilePath:  newFilePaths[i],
			DownloadURL:  s.sink.URL(newFilePaths[i]),
		}
	}

	s.dispatchBatch(id, params)

	if s.queue.Enabled() {
		for _, path := range newFilePaths {
			s.queue.Enqueue(ctx, queue.Job{OptimizationID: id, NewFilePath: path, AcceptedAt: time.Now()})
		}
	}

	return AcceptBatchResult{
		OptimizationID:     id,
		Count:              len(req.Files),
		CallbacksScheduled: len(req.Callbacks),
		Results:            results,
	}, nil
}

// dispatchSingle submits the transform to the pool and, once it resolves,
// fans out to BlobSink, SSE and callbacks. Runs on its own goroutine so
// AcceptSingle can return before any worker begins processing.
func (s *Service) dispatchSingle(id string, params registry.ControllerParams, op Operation, watermarkText string) {
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), contextDeadline)
		defer cancel()

		data, err := os.ReadFile(params.File.Path)
		if err != nil {
			s.publishFailure(id, params.NewFilePath, params.Callbacks, fmt.Errorf("%w: %v", ErrTransformFailed, err))
			return
		}

		s.broker.Publish(sse.Event{Type: sse.EventProgress, ID: id, Percent: 10, Message: "queued"})

		future, err := s.pool.Submit(workerpool.Task{
			Bytes:        data,
			Options:      params.Options,
			OriginalName: params.File.OriginalName,
			Run:          runOperation(op, watermarkText),
		})
		if err != nil {
			s.publishFailure(id, params.NewFilePath, params.Callbacks, fmt.Errorf("%w: %v", ErrQueueBackpressure, err))
			return
		}

		s.broker.Publish(sse.Event{Type: sse.EventProgress, ID: id, Percent: 50, Message: "processing"})

		result := future.Get()
		if !result.Success {
			s.publishFailure(id, params.NewFilePath, params.Callbacks, fmt.Errorf("%w: %v", ErrTransformFailed, result.Err))
			return
		}

		mimeType := imaging.MimeFromFormat(params.Options.Format)
		if err := s.sink.Put(bgCtx, params.NewFilePath, result.Bytes, mimeType); err != nil {
			s.publishFailure(id, params.NewFilePath, params.Callbacks, fmt.Errorf("%w: %v", ErrStorageUpload, err))
			return
		}

		downloadURL := s.sink.URL(params.NewFilePath)
		s.broker.Publish(sse.Event{Type: sse.EventComplete, ID: id, Percent: 100, Payload: map[string]interface{}{
			"optimizationId": id,
			"downloadUrl":    downloadURL,
			"originalSize":   result.OriginalSize,
			"optimizedSize":  result.OptimizedSize,
		}})

		s.notifier.Notify(bgCtx, toCallbackSinks(params.Callbacks), map[string]interface{}{
			"optimizationId": id,
			"status":         "complete",
			"downloadUrl":    downloadURL,
		})
	}()
}

// dispatchBatch runs each file's pipeline independently via submitMany,
// uploads successes under their minted params.NewFilePaths[i] keys (the same
// paths AcceptBatch returns per file), and fires one consolidated callback
// once every file has settled.
func (s *Service) dispatchBatch(id string, params registry.ControllerParams) {
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), contextDeadline)
		defer cancel()

		tasks := make([]workerpool.Task, len(params.Files))
		for i, f := range params.Files {
			data, err := os.ReadFile(f.Path)
			if err != nil {
				data = nil
			}
			tasks[i] = workerpool.Task{Bytes: data, Options: params.Options, OriginalName: f.OriginalName, Run: runOperation(OperationOptimize, "")}
		}

		s.broker.Publish(sse.Event{Type: sse.EventProgress, ID: id, Percent: 10, Message: "queued"})

		future, err := s.pool.SubmitMany(tasks)
		if err != nil {
			s.publishFailure(id, "", params.Callbacks, fmt.Errorf("%w: %v", ErrQueueBackpressure, err))
			return
		}
		results := future.Get()

		type fileOutcome struct {
			Index       int    `json:"index"`
			NewFilePath string `json:"newFilePath"`
			Success     bool   `json:"success"`
			DownloadURL string `json:"downloadUrl,omitempty"`
			Error       string `json:"error,omitempty"`
		}
		outcomes := make([]fileOutcome, len(results))

		for i, result := range results {
			newFilePath := params.NewFilePaths[i]
			if !result.Success {
				outcomes[i] = fileOutcome{Index: i, NewFilePath: newFilePath, Success: false, Error: errString(result.Err)}
				s.broker.Publish(sse.Event{Type: sse.EventError, ID: id, File: newFilePath, Message: errString(result.Err)})
				continue
			}

			mimeType := imaging.MimeFromFormat(params.Options.Format)
			if err := s.sink.Put(bgCtx, newFilePath, result.Bytes, mimeType); err != nil {
				outcomes[i] = fileOutcome{Index: i, NewFilePath: newFilePath, Success: false, Error: err.Error()}
				s.broker.Publish(sse.Event{Type: sse.EventError, ID: id, File: newFilePath, Message: err.Error()})
				continue
			}

			downloadURL := s.sink.URL(newFilePath)
			outcomes[i] = fileOutcome{Index: i, NewFilePath: newFilePath, Success: true, DownloadURL: downloadURL}
			s.broker.Publish(sse.Event{Type: sse.EventProgress, ID: id, File: newFilePath, Percent: 100, Message: "file complete"})
		}

		s.broker.Publish(sse.Event{Type: sse.EventComplete, ID: id, Percent: 100, Payload: outcomes})

		s.notifier.Notify(bgCtx, toCallbackSinks(params.Callbacks), map[string]interface{}{
			"optimizationId": id,
			"status":         "complete",
			"results":        outcomes,
		})
	}()
}

func (s *Service) publishFailure(id, newFilePath string, callbacks []registry.CallbackSink, err error) {
	log.Error().Err(err).Str("optimizationId", id).Msg("optimization: task failed")
	s.broker.Publish(sse.Event{Type: sse.EventError, ID: id, Message: err.Error()})
	s.notifier.Notify(context.Background(), toCallbackSinks(callbacks), map[string]interface{}{
		"optimizationId": id,
		"status":         "error",
		"newFilePath":    newFilePath,
		"error":          err.Error(),
	})
}

func toCallbackSinks(sinks []registry.CallbackSink) []callback.Sink {
	out := make([]callback.Sink, len(sinks))
	for i, s := range sinks {
		out[i] = callback.Sink{URL: s.URL, Method: s.Method, Headers: s.Headers}
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// runOperation returns the worker-pool Run function for a single task,
// dispatching to the transformer operation this request asked for.
func runOperation(op Operation, watermarkText string) func([]byte, interface{}) ([]byte, error) {
	return func(data []byte, rawOptions interface{}) ([]byte, error) {
		opts, _ := rawOptions.(registry.OptimizationOptions)
		switch op {
		case OperationBlurPlaceholder:
			return imaging.BlurPlaceholder(data, imaging.BlurPlaceholderOptions{
				Width:           opts.Width,
				Height:          opts.Height,
				BlurRadius:      float64(opts.BlurRadius),
				Quality:         opts.Quality,
				MobileOptimized: opts.MobileOptimized,
			})
		case OperationWatermark:
			return imaging.Watermark(data, watermarkText, imaging.WatermarkOptions{})
		default:
			return imaging.Optimize(data, imaging.Options{
				Width:   opts.Width,
				Height:  opts.Height,
				Quality: opts.Quality,
				Format:  opts.Format,
			})
		}
	}
}

// contextDeadline bounds the background context that dispatchSingle and
// dispatchBatch pass to the blob-sink upload and the callback notifier.
const contextDeadline = 30 * time.Second
