// Package moderation screens images through a content-safety service
// before they are accepted into a working set. The gate fails open: only an
// explicit flagged verdict rejects an image.
package moderation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kozaktomas/subtitle-stitcher/internal/geometry"
	"github.com/kozaktomas/subtitle-stitcher/internal/imaging"
)

// Collaborator result codes.
const (
	CodeClean   = 0
	CodeFlagged = 87014
)

// Defaults used when Options leaves a field zero.
const (
	DefaultCompressThreshold = 500 * 1024
	DefaultCompressQuality   = 70
	DefaultCompressMaxWidth  = 1080
	DefaultMaxPayload        = 5 * 1024 * 1024
	DefaultTimeout           = 30 * time.Second
	DefaultRemoteTimeout     = 60 * time.Second
)

// Reason explains a moderation verdict.
type Reason string

const (
	ReasonClean    Reason = "clean"
	ReasonFlagged  Reason = "flagged"
	ReasonTimedOut Reason = "timed_out"
	ReasonError    Reason = "error"
	ReasonSkipped  Reason = "skipped"
)

// Result is the verdict for one image. Passed is false only for
// ReasonFlagged.
type Result struct {
	Passed bool   `json:"passed"`
	Reason Reason `json:"reason"`
	Code   int    `json:"code,omitempty"`
}

// Checker submits an image payload to a content-safety service and
// returns the service's result code.
type Checker interface {
	Check(ctx context.Context, payload []byte, contentType string) (int, error)
}

// CodeError is a transport or service error that still carries a result
// code.
type CodeError struct {
	Code    int
	Message string
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("content check error %d: %s", e.Code, e.Message)
}

// Options configures a Gate.
type Options struct {
	// CompressThreshold is the file size in bytes above which the image is
	// recompressed before submission.
	CompressThreshold int64
	CompressQuality   int
	CompressMaxWidth  int
	// MaxPayload is the ceiling on the base64-encoded payload size.
	MaxPayload int
	// Timeout is the local bound on a single check. It is clamped to
	// RemoteTimeout.
	Timeout       time.Duration
	RemoteTimeout time.Duration
	Codec         imaging.Codec
}

// Gate decides whether an image may be accepted.
type Gate struct {
	checker Checker
	opts    Options
}

// NewGate creates a Gate around checker.
func NewGate(checker Checker, opts Options) *Gate {
	if opts.CompressThreshold <= 0 {
		opts.CompressThreshold = DefaultCompressThreshold
	}
	if opts.CompressQuality <= 0 {
		opts.CompressQuality = DefaultCompressQuality
	}
	if opts.CompressMaxWidth <= 0 {
		opts.CompressMaxWidth = DefaultCompressMaxWidth
	}
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = DefaultMaxPayload
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = DefaultRemoteTimeout
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	opts.Timeout = min(opts.Timeout, opts.RemoteTimeout)
	if opts.Codec == nil {
		opts.Codec = imaging.JPEGCodec{}
	}
	return &Gate{checker: checker, opts: opts}
}

type outcome struct {
	code int
	err  error
}

// Check screens rec. It never fails; every problem other than an explicit
// flagged verdict yields a passing result.
func (g *Gate) Check(ctx context.Context, rec geometry.ImageRecord) Result {
	start := time.Now()
	result := g.check(ctx, rec)

	slog.Info("moderation decision",
		"image", filepath.Base(rec.Path),
		"passed", result.Passed,
		"reason", string(result.Reason),
		"code", result.Code,
		"duration", time.Since(start))
	return result
}

func (g *Gate) check(ctx context.Context, rec geometry.ImageRecord) Result {
	payload, err := g.payload(ctx, rec.Path)
	if err != nil {
		slog.Warn("moderation payload unavailable", "image", filepath.Base(rec.Path), "error", err)
		return Result{Passed: true, Reason: ReasonError}
	}

	if base64.StdEncoding.EncodedLen(len(payload)) > g.opts.MaxPayload {
		return Result{Passed: true, Reason: ReasonSkipped}
	}

	done := make(chan outcome, 1)
	go func() {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.RemoteTimeout)
		defer cancel()
		code, err := g.checker.Check(callCtx, payload, http.DetectContentType(payload))
		done <- outcome{code: code, err: err}
	}()

	timer := time.NewTimer(g.opts.Timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return verdict(out)
	case <-timer.C:
		return Result{Passed: true, Reason: ReasonTimedOut}
	}
}

// payload reads the bytes to submit, recompressing large files first.
// A failed recompression falls back to the original file.
func (g *Gate) payload(ctx context.Context, path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.Size() > g.opts.CompressThreshold {
		data, err := g.compress(ctx, path)
		if err == nil {
			return data, nil
		}
		slog.Warn("compression failed, submitting original", "image", filepath.Base(path), "error", err)
	}

	return os.ReadFile(path) //nolint:gosec // probed image path
}

func (g *Gate) compress(ctx context.Context, path string) ([]byte, error) {
	compressed, err := g.opts.Codec.Compress(ctx, path, g.opts.CompressQuality, g.opts.CompressMaxWidth)
	if err != nil {
		return nil, err
	}
	defer os.Remove(compressed)
	return os.ReadFile(compressed) //nolint:gosec // codec output
}

func verdict(out outcome) Result {
	if out.err != nil {
		var ce *CodeError
		if errors.As(out.err, &ce) && ce.Code == CodeFlagged {
			return Result{Passed: false, Reason: ReasonFlagged, Code: ce.Code}
		}
		slog.Warn("content check failed", "error", out.err)
		return Result{Passed: true, Reason: ReasonError}
	}

	switch out.code {
	case CodeFlagged:
		return Result{Passed: false, Reason: ReasonFlagged, Code: out.code}
	case CodeClean:
		return Result{Passed: true, Reason: ReasonClean}
	default:
		return Result{Passed: true, Reason: ReasonError, Code: out.code}
	}
}

// NoopChecker reports every image as clean.
type NoopChecker struct{}

// Check always returns CodeClean.
func (NoopChecker) Check(context.Context, []byte, string) (int, error) {
	return CodeClean, nil
}
