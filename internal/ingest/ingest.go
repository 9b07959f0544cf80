// Package ingest screens a batch of selected images one at a time and
// splits them into accepted and rejected sets.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kozaktomas/subtitle-stitcher/internal/geometry"
	"github.com/kozaktomas/subtitle-stitcher/internal/imaging"
	"github.com/kozaktomas/subtitle-stitcher/internal/moderation"
)

var (
	ErrImageTooLarge   = errors.New("image too large")
	ErrUnsupportedType = errors.New("unsupported image type")
)

// Defaults mirrored from the picker limits.
const (
	DefaultMaxCount = 9
	DefaultMaxSize  = 10 * 1024 * 1024
)

// DefaultExtensions lists the accepted file extensions.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png"}

// Progress phases.
const (
	PhaseProbing    = "probing"
	PhaseModerating = "moderating"
	PhaseDone       = "done"
)

// ProgressInfo contains progress information for callbacks
type ProgressInfo struct {
	Phase   string
	Current int
	Total   int
	Path    string
	Passed  bool
	Message string
}

// Moderator screens a probed image.
type Moderator interface {
	Check(ctx context.Context, rec geometry.ImageRecord) moderation.Result
}

// Options configures a Pipeline.
type Options struct {
	MaxCount   int                // working set capacity
	MaxSize    int64              // per-file size limit in bytes
	Extensions []string           // e.g. ".jpg" or "jpg"
	OnProgress func(ProgressInfo) // Optional progress callback
}

// Dropped is a candidate that never reached moderation.
type Dropped struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

// Result holds the outcome of a batch. Accepted and Rejected preserve the
// selection order.
type Result struct {
	Accepted  []geometry.ImageRecord
	Rejected  []geometry.ImageRecord
	Dropped   []Dropped
	Truncated []string
}

// RejectedCount is the number of images filtered by moderation.
func (r *Result) RejectedCount() int {
	return len(r.Rejected)
}

// Pipeline runs candidates through probing and moderation.
type Pipeline struct {
	prober    imaging.Prober
	moderator Moderator
	opts      Options
}

// New creates a Pipeline.
func New(prober imaging.Prober, moderator Moderator, opts Options) *Pipeline {
	if opts.MaxCount <= 0 {
		opts.MaxCount = DefaultMaxCount
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	exts := make([]string, 0, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	opts.Extensions = exts
	return &Pipeline{prober: prober, moderator: moderator, opts: opts}
}

// MaxCount returns the working set capacity the pipeline enforces.
func (p *Pipeline) MaxCount() int {
	return p.opts.MaxCount
}

// Ingest screens candidates in order. existing is the number of images
// already in the working set; candidates that would exceed MaxCount are
// returned in Truncated without being processed. Each candidate is fully
// moderated before the next one is probed.
//
// A cancelled context stops the batch between candidates and returns the
// partial result together with the context error. The verdict of a check
// still in flight when the context is cancelled is discarded.
func (p *Pipeline) Ingest(ctx context.Context, candidates []string, existing int) (*Result, error) {
	result := &Result{}

	slots := max(p.opts.MaxCount-existing, 0)
	if len(candidates) > slots {
		result.Truncated = slices.Clone(candidates[slots:])
		candidates = candidates[:slots]
	}

	total := len(candidates)
	for i, path := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		p.report(ProgressInfo{Phase: PhaseProbing, Current: i, Total: total, Path: path})

		rec, err := p.probe(path)
		if err != nil {
			slog.Warn("dropping candidate", "image", filepath.Base(path), "error", err)
			result.Dropped = append(result.Dropped, Dropped{Path: path, Err: err})
			p.report(ProgressInfo{Phase: PhaseModerating, Current: i + 1, Total: total, Path: path, Message: err.Error()})
			continue
		}

		verdict := p.moderator.Check(ctx, rec)
		if err := ctx.Err(); err != nil {
			slog.Info("discarding verdict of cancelled batch", "image", filepath.Base(path))
			return result, err
		}
		if verdict.Passed {
			result.Accepted = append(result.Accepted, rec)
		} else {
			result.Rejected = append(result.Rejected, rec)
		}
		p.report(ProgressInfo{
			Phase:   PhaseModerating,
			Current: i + 1,
			Total:   total,
			Path:    path,
			Passed:  verdict.Passed,
			Message: string(verdict.Reason),
		})
	}

	p.report(ProgressInfo{
		Phase:   PhaseDone,
		Current: total,
		Total:   total,
		Message: fmt.Sprintf("%d accepted, %d filtered", len(result.Accepted), len(result.Rejected)),
	})
	return result, nil
}

func (p *Pipeline) probe(path string) (geometry.ImageRecord, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(p.opts.Extensions, ext) {
		return geometry.ImageRecord{}, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Base(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return geometry.ImageRecord{}, fmt.Errorf("%w: %w", imaging.ErrProbeFailure, err)
	}
	if info.Size() > p.opts.MaxSize {
		return geometry.ImageRecord{}, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrImageTooLarge, filepath.Base(path), info.Size(), p.opts.MaxSize)
	}

	return p.prober.Probe(path)
}

func (p *Pipeline) report(info ProgressInfo) {
	if p.opts.OnProgress != nil {
		p.opts.OnProgress(info)
	}
}
