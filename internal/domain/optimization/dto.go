package optimization

import "github.com/imageopt/optimizer/internal/pkg/registry"

// AcceptSingleRequest is the orchestrator's input for a single-image
// optimize or blur-placeholder request.
type AcceptSingleRequest struct {
	File         registry.FileRef
	Options      registry.OptimizationOptions
	Callbacks    []registry.CallbackSink
	Operation    Operation
	WatermarkText string
}

// AcceptBatchRequest is the orchestrator's input for batch-optimize.
type AcceptBatchRequest struct {
	Files     []registry.FileRef
	Options   registry.OptimizationOptions
	Callbacks []registry.CallbackSink
}

// Operation selects which transform the worker pool runs for a task.
type Operation string

const (
	OperationOptimize       Operation = "optimize"
	OperationBlurPlaceholder Operation = "blur-placeholder"
	OperationWatermark       Operation = "watermark"
)

// AcceptResult is returned synchronously from AcceptSingle, before any
// worker has run.
type AcceptResult struct {
	OptimizationID     string
	OriginalSize       int64
	NewFilePath        string
	DownloadURL        string
	CallbacksScheduled int
}

// AcceptBatchResult is the batch form of AcceptResult.
type AcceptBatchResult struct {
	OptimizationID     string
	Count              int
	CallbacksScheduled int
	Results            []BatchFileAccept
}

// BatchFileAccept is one file's synchronous accept outcome within a batch.
type BatchFileAccept struct {
	OriginalName string
	NewFilePath  string
	DownloadURL  string
}
