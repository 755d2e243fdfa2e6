// Package registry is a typed facade over the TTL store, keyed by
// "<type>:<id>". The orchestrator uses it to hold per-request optimization
// parameters, temp-file handles, and callback lists for the lifetime of a
// task.
package registry

import (
	"strconv"
	"time"

	"github.com/imageopt/optimizer/internal/pkg/ttlstore"
)

// Kind identifies a context namespace held in the registry.
type Kind string

const (
	KindImageOptimization Kind = "image-optimization"
	KindUser              Kind = "user"
	KindRequest           Kind = "request"
	KindControllerParams  Kind = "controller-params"
)

// FileRef is a handle to an on-disk temp upload.
type FileRef struct {
	Path         string
	OriginalName string
	MimeType     string
	Size         int64
}

// OptimizationOptions are the immutable per-request transform parameters.
type OptimizationOptions struct {
	Width           int
	Height          int
	Quality         int
	Format          string
	BlurRadius      int
	MobileOptimized bool
}

// CallbackSink is a webhook target to be notified on completion.
type CallbackSink struct {
	URL     string
	Method  string
	Headers map[string]string
}

// ControllerParams is the record held under KindControllerParams: the full
// parameter set for one accepted optimization request, single or batch.
type ControllerParams struct {
	ClientID     string
	File         *FileRef
	Files        []*FileRef
	Options      OptimizationOptions
	Callbacks    []CallbackSink
	NewFilePath  string
	NewFilePaths []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExpiresAt    time.Time
}

// expiryGrace is added on top of a context's own TTL when writing it to the
// backing store. ExpiredContextsWithFiles relies on the store entry still
// being present once ExpiresAt has passed so it can unlink the context's
// temp file; without this margin the store's own sweep (or a lazy Get) would
// evict the entry at the same instant it becomes "expired" from the
// context's point of view, and the file would never be unlinked. This must
// stay comfortably larger than however often a caller runs its expired-
// context sweep.
const expiryGrace = 2 * time.Hour

// Registry is a typed facade over a ttlstore.Store.
type Registry struct {
	store      *ttlstore.Store
	defaultTTL time.Duration
}

// New returns a Registry backed by store, defaulting new entries to ttl
// when the caller doesn't specify one.
func New(store *ttlstore.Store, ttl time.Duration) *Registry {
	return &Registry{store: store, defaultTTL: ttl}
}

func key(kind Kind, id string) string {
	return string(kind) + ":" + id
}

// SetControllerParams performs a merge-on-write upsert: the stored value is
// the shallow composition of the prior value (if any) and the new fields,
// with ClientID defaulting to id, CreatedAt preserved across writes, and
// UpdatedAt refreshed on every call.
func (r *Registry) SetControllerParams(id string, params ControllerParams) ControllerParams {
	now := time.Now()
	merged := params
	if existing, ok := r.GetControllerParams(id); ok {
		merged = mergeControllerParams(existing, params)
	}
	if merged.ClientID == "" {
		merged.ClientID = id
	}
	if merged.CreatedAt.IsZero() {
		merged.CreatedAt = now
	}
	merged.UpdatedAt = now
	if merged.ExpiresAt.IsZero() {
		merged.ExpiresAt = now.Add(r.defaultTTL)
	}

	r.store.Set(key(KindControllerParams, id), merged, r.defaultTTL+expiryGrace)
	return merged
}

// mergeControllerParams shallow-composes prior over next: any zero-value
// field in next is filled from prior.
func mergeControllerParams(prior, next ControllerParams) ControllerParams {
	merged := prior
	if next.File != nil {
		merged.File = next.File
	}
	if next.Files != nil {
		merged.Files = next.Files
	}
	if (next.Options != OptimizationOptions{}) {
		merged.Options = next.Options
	}
	if next.Callbacks != nil {
		merged.Callbacks = next.Callbacks
	}
	if next.NewFilePath != "" {
		merged.NewFilePath = next.NewFilePath
	}
	if next.NewFilePaths != nil {
		merged.NewFilePaths = next.NewFilePaths
	}
	if next.ClientID != "" {
		merged.ClientID = next.ClientID
	}
	if !next.ExpiresAt.IsZero() {
		merged.ExpiresAt = next.ExpiresAt
	}
	merged.CreatedAt = prior.CreatedAt
	return merged
}

// GetControllerParams returns the params stored for id, or false if absent
// or expired.
func (r *Registry) GetControllerParams(id string) (ControllerParams, bool) {
	v, ok := r.store.Get(key(KindControllerParams, id))
	if !ok {
		return ControllerParams{}, false
	}
	params, ok := v.(ControllerParams)
	return params, ok
}

// Has reports whether id is present and unexpired under kind.
func (r *Registry) Has(kind Kind, id string) bool {
	return r.store.Has(key(kind, id))
}

// Delete removes id under kind, reporting whether it was present.
func (r *Registry) Delete(kind Kind, id string) bool {
	return r.store.Delete(key(kind, id))
}

// UpdateTTL refreshes id's expiry under kind.
func (r *Registry) UpdateTTL(kind Kind, id string, ttl time.Duration) bool {
	return r.store.UpdateTTL(key(kind, id), ttl)
}

// IDsOf returns the ids currently held under kind.
func (r *Registry) IDsOf(kind Kind) []string {
	prefix := string(kind) + ":"
	var ids []string
	for _, k := range r.store.Keys() {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			ids = append(ids, k[len(prefix):])
		}
	}
	return ids
}

// CountOf returns the number of ids currently held under kind.
func (r *Registry) CountOf(kind Kind) int {
	return len(r.IDsOf(kind))
}

// ExpiredContextsWithFiles returns the FileRef paths belonging to
// controller-params contexts whose own ExpiresAt is not after now, and
// deletes those contexts from the store. The caller (the cleanup
// scheduler's hourly sweep) unlinks the returned files; the store entry
// outlives ExpiresAt by expiryGrace, so the context is still readable here.
func (r *Registry) ExpiredContextsWithFiles(now time.Time) []string {
	var paths []string
	for _, id := range r.IDsOf(KindControllerParams) {
		params, ok := r.GetControllerParams(id)
		if !ok {
			continue
		}
		if now.Before(params.ExpiresAt) {
			continue
		}
		if params.File != nil {
			paths = append(paths, params.File.Path)
		}
		for _, f := range params.Files {
			paths = append(paths, f.Path)
		}
		r.Delete(KindControllerParams, id)
	}
	return paths
}

// FormatTTLSeconds renders seconds as a decimal string, used when logging
// registry configuration.
func FormatTTLSeconds(d time.Duration) string {
	return strconv.Itoa(int(d.Seconds()))
}
