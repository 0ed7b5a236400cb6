package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/autobrr/go-fragindex/internal/cache"
	"github.com/autobrr/go-fragindex/internal/fragindex"
	"github.com/autobrr/go-fragindex/internal/observability"
	"github.com/autobrr/go-fragindex/internal/seekmap"
)

// IndexHandler serves fragment indexes, seek resolution and sidx export for
// files under the media root.
type IndexHandler struct {
	cache  *cache.Cache
	root   string
	logger *slog.Logger
}

// NewIndexHandler creates a handler confined to mediaRoot.
func NewIndexHandler(c *cache.Cache, mediaRootPath string, logger *slog.Logger) (*IndexHandler, error) {
	root, err := mediaRoot(mediaRootPath)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexHandler{cache: c, root: root, logger: logger}, nil
}

// PathInput selects a file under the media root.
type PathInput struct {
	Path string `query:"path" required:"true" doc:"File path, relative to the media root"`
}

// IndexResponse describes the index of one file version.
type IndexResponse struct {
	Path       string               `json:"path"`
	Size       int64                `json:"size"`
	ModTime    time.Time            `json:"mod_time"`
	Source     cache.Source         `json:"source" doc:"Where the index came from: memory, store or scan"`
	Seekable   bool                 `json:"seekable"`
	Timescale  uint32               `json:"timescale"`
	DurationUs int64                `json:"duration_us"`
	Fragments  []fragindex.Fragment `json:"fragments"`
}

type IndexOutput struct {
	Body IndexResponse
}

// SeekInput selects a file and a seek target.
type SeekInput struct {
	Path   string `query:"path" required:"true" doc:"File path, relative to the media root"`
	TimeUs int64  `query:"time_us" minimum:"0" doc:"Seek target in microseconds"`
}

// SeekResponse is what a playback pipeline needs to start reading at a target.
type SeekResponse struct {
	Path       string             `json:"path"`
	TimeUs     int64              `json:"time_us"`
	Seekable   bool               `json:"seekable"`
	Replaced   bool               `json:"replaced" doc:"True when the built index replaced the file's own seek map"`
	DurationUs int64              `json:"duration_us"`
	Points     seekmap.SeekPoints `json:"points"`
}

type SeekOutput struct {
	Body SeekResponse
}

// SidxInput selects a file and the reference id written into the box.
type SidxInput struct {
	Path        string `query:"path" required:"true" doc:"File path, relative to the media root"`
	ReferenceID int64  `query:"reference_id" default:"1" minimum:"1" maximum:"4294967295"`
}

type SidxOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

type InvalidateOutput struct {
	Body struct {
		Path        string `json:"path"`
		Invalidated bool   `json:"invalidated"`
	}
}

// Register registers the index routes with the API.
func (h *IndexHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getIndex",
		Method:      "GET",
		Path:        "/v1/index",
		Summary:     "Fragment index",
		Description: "Returns the fragment index of a file, building it on first use",
		Tags:        []string{"Index"},
	}, h.GetIndex)

	huma.Register(api, huma.Operation{
		OperationID: "invalidateIndex",
		Method:      "DELETE",
		Path:        "/v1/index",
		Summary:     "Drop a cached index",
		Description: "Removes the index of a file from memory and from the index store so the next request scans it again",
		Tags:        []string{"Index"},
	}, h.InvalidateIndex)

	huma.Register(api, huma.Operation{
		OperationID: "getSeek",
		Method:      "GET",
		Path:        "/v1/seek",
		Summary:     "Resolve a seek target",
		Description: "Returns the seek points for a target time using the file's own index or the built one",
		Tags:        []string{"Index"},
	}, h.GetSeek)

	huma.Register(api, huma.Operation{
		OperationID: "getSidx",
		Method:      "GET",
		Path:        "/v1/sidx",
		Summary:     "Export a sidx box",
		Description: "Returns a segment index box describing every fragment of the file",
		Tags:        []string{"Index"},
	}, h.GetSidx)
}

// GetIndex returns the fragment index for a file.
func (h *IndexHandler) GetIndex(ctx context.Context, input *PathInput) (*IndexOutput, error) {
	entry, err := h.lookup(ctx, input.Path)
	if err != nil {
		return nil, err
	}
	return &IndexOutput{
		Body: IndexResponse{
			Path:       h.relative(entry.Key.Path),
			Size:       entry.Key.Size,
			ModTime:    entry.Key.ModTime.UTC(),
			Source:     entry.Source,
			Seekable:   entry.Index.IsSeekable(),
			Timescale:  entry.Index.Timescale(),
			DurationUs: entry.Index.DurationUs(),
			Fragments:  entry.Index.Fragments(),
		},
	}, nil
}

// InvalidateIndex drops every cached index of a file. The file itself does not
// need to exist any more.
func (h *IndexHandler) InvalidateIndex(ctx context.Context, input *PathInput) (*InvalidateOutput, error) {
	path, err := resolvePath(h.root, input.Path)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid path", err)
	}
	if err := h.cache.Invalidate(ctx, path); err != nil {
		observability.WithError(h.log(ctx), err).Error("could not invalidate index", slog.String("path", input.Path))
		return nil, huma.Error500InternalServerError("could not invalidate index", err)
	}
	h.log(ctx).Info("index invalidated", slog.String("path", path))

	out := &InvalidateOutput{}
	out.Body.Path = h.relative(path)
	out.Body.Invalidated = true
	return out, nil
}

// GetSeek resolves a seek target.
func (h *IndexHandler) GetSeek(ctx context.Context, input *SeekInput) (*SeekOutput, error) {
	entry, err := h.lookup(ctx, input.Path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(entry.Key.Path)
	if err != nil {
		return nil, h.fileError(ctx, input.Path, err)
	}
	defer file.Close()

	m, replaced := seekmap.Attach(ctx, file, entry.Key.Size, entry.Index, h.log(ctx))
	return &SeekOutput{
		Body: SeekResponse{
			Path:       h.relative(entry.Key.Path),
			TimeUs:     input.TimeUs,
			Seekable:   m.IsSeekable(),
			Replaced:   replaced,
			DurationUs: m.DurationUs(),
			Points:     m.SeekPoints(input.TimeUs),
		},
	}, nil
}

// GetSidx exports the index of a file as a sidx box.
func (h *IndexHandler) GetSidx(ctx context.Context, input *SidxInput) (*SidxOutput, error) {
	entry, err := h.lookup(ctx, input.Path)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = seekmap.EncodeSidx(&buf, entry.Index, seekmap.SidxOptions{ReferenceID: uint32(input.ReferenceID)})
	switch {
	case errors.Is(err, seekmap.ErrNotSeekable):
		return nil, huma.Error422UnprocessableEntity("file has no fragments to index")
	case errors.Is(err, seekmap.ErrSidxOverflow):
		return nil, huma.Error422UnprocessableEntity("fragments do not fit in a sidx box", err)
	case err != nil:
		return nil, huma.Error500InternalServerError("encoding sidx", err)
	}

	name := filepath.Base(entry.Key.Path) + ".sidx"
	return &SidxOutput{
		ContentType:        "application/octet-stream",
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", name),
		Body:               buf.Bytes(),
	}, nil
}

func (h *IndexHandler) lookup(ctx context.Context, requested string) (cache.Entry, error) {
	path, err := resolvePath(h.root, requested)
	if err != nil {
		return cache.Entry{}, huma.Error400BadRequest("invalid path", err)
	}
	entry, err := h.cache.Lookup(ctx, path)
	if err != nil {
		return cache.Entry{}, h.fileError(ctx, requested, err)
	}
	return entry, nil
}

func (h *IndexHandler) fileError(ctx context.Context, requested string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return huma.Error404NotFound(fmt.Sprintf("file %s not found", requested))
	}
	observability.WithError(h.log(ctx), err).Warn("could not read file", slog.String("path", requested))
	return huma.Error400BadRequest("could not read file", err)
}

// log returns the request scoped logger when the request middleware set one.
func (h *IndexHandler) log(ctx context.Context) *slog.Logger {
	if logger, ok := observability.ContextLogger(ctx); ok {
		return logger
	}
	return h.logger
}

func (h *IndexHandler) relative(path string) string {
	if rel, err := filepath.Rel(h.root, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}
