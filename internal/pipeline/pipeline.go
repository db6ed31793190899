// Package pipeline orchestrates one conversion per request: peek the head of
// the uploaded stream, classify it by signature, reassemble the full stream,
// and hand it to either the passthrough path or the transformer capability.
// The storage sink is an optional capability; without it the upload variant
// is unavailable.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pixelrelay/pixelrelay/internal/logger"
	"github.com/pixelrelay/pixelrelay/internal/policy"
	"github.com/pixelrelay/pixelrelay/internal/sniff"
	"github.com/pixelrelay/pixelrelay/internal/stream"
)

// Transformer is the opaque re-encoding capability. It consumes the full
// input stream and produces re-encoded bytes in the requested format; it must
// honor ctx cancellation and must not retain input past the returned reader's
// lifetime. CanEncode advertises which targets the engine supports so
// requests for the rest are rejected before any stream I/O.
type Transformer interface {
	Transform(ctx context.Context, input io.Reader, opts TransformOptions) (io.ReadCloser, error)
	CanEncode(format policy.Format) bool
}

// TransformOptions parameterizes one transformer run.
type TransformOptions struct {
	Format policy.Format
	Encode policy.EncodeOptions
	// KeepMetadata preserves embedded metadata; by default it is stripped
	// during re-encoding.
	KeepMetadata bool
}

// Sink is the optional storage capability: it consumes a stream and returns
// a location descriptor.
type Sink interface {
	Store(ctx context.Context, input io.Reader, opts SinkOptions) (Descriptor, error)
}

// SinkOptions parameterizes one sink upload.
type SinkOptions struct {
	ContentType string
	Format      policy.Format
}

// Descriptor locates a stored conversion output.
type Descriptor struct {
	URL    string        `json:"url"`
	Bytes  int64         `json:"bytes"`
	Format policy.Format `json:"format"`
	ID     string        `json:"id"`
}

// Request is a validated conversion request. Build it with NewRequest before
// touching the upload stream.
type Request struct {
	Format       policy.Format
	KeepMetadata bool
}

// NewRequest validates the raw format token and builds a Request. It
// performs no I/O; an unknown token fails here so a bad request never costs
// a stream read.
func NewRequest(formatToken string, keepMetadata bool) (Request, error) {
	format, err := policy.Resolve(formatToken)
	if err != nil {
		return Request{}, validationError(err.Error())
	}
	return Request{Format: format, KeepMetadata: keepMetadata}, nil
}

// Result is a completed dispatch: the output stream plus an idempotent
// Cleanup releasing the output and the underlying source. The caller owns it
// until consumed or cancelled.
type Result struct {
	Output      io.ReadCloser
	ContentType string
	Cleanup     func()
}

// State names a pipeline phase, for logs and tests.
type State string

const (
	StateIdle                   State = "idle"
	StateSniffing               State = "sniffing"
	StateRejectedSignature      State = "rejected_signature"
	StateRejectedFormatMismatch State = "rejected_format_mismatch"
	StateValidated              State = "validated"
	StateDispatching            State = "dispatching"
	StatePassingThrough         State = "passing_through"
	StateTransforming           State = "transforming"
	StateStreaming              State = "streaming"
	StateCompleted              State = "completed"
	StateAborted                State = "aborted"
)

// Pipeline runs conversions. One instance serves many concurrent requests;
// per-request state lives in each Convert call.
type Pipeline struct {
	transformer Transformer
	sink        Sink
	logger      *slog.Logger
}

// New creates a pipeline. sink may be nil, in which case ConvertAndStore is
// unavailable.
func New(log *slog.Logger, transformer Transformer, sink Sink) *Pipeline {
	return &Pipeline{
		transformer: transformer,
		sink:        sink,
		logger:      logger.Component(log, "pipeline"),
	}
}

// CanStore reports whether the storage sink capability is configured.
func (p *Pipeline) CanStore() bool { return p.sink != nil }

// Convert runs the sniff/reassemble/dispatch sequence on body and returns
// the output stream. On error the body is already released; on success the
// caller must invoke Result.Cleanup (any number of times, once has effect).
// Returned errors are always *Error.
func (p *Pipeline) Convert(ctx context.Context, body io.ReadCloser, req Request) (Result, error) {
	run := &run{logger: p.logger, state: StateIdle}
	if !req.Format.Passthrough() && !p.transformer.CanEncode(req.Format) {
		_ = body.Close()
		return Result{}, validationError(fmt.Sprintf("Conversion to %s not supported", req.Format))
	}
	src := stream.NewSource(body)

	run.to(StateSniffing)
	if err := ctx.Err(); err != nil {
		return Result{}, run.abort(src, err)
	}
	head, err := src.Peek(sniff.HeadBudget)
	if err != nil {
		_ = src.Close()
		if ctx.Err() != nil {
			return Result{}, run.abort(src, ctx.Err())
		}
		return Result{}, failure("Failed to read upload", err)
	}

	sig := sniff.Detect(head)
	if !sig.Valid {
		run.to(StateRejectedSignature)
		_ = src.Close()
		return Result{}, signatureError("Unsupported or invalid image signature")
	}
	if !req.Format.AcceptsInput(sig.Kind) {
		run.to(StateRejectedFormatMismatch)
		_ = src.Close()
		return Result{}, signatureError("SVG output only supported for SVG inputs")
	}

	run.to(StateValidated)
	reassembled, err := src.Reassemble()
	if err != nil {
		_ = src.Close()
		return Result{}, failure("Conversion failed", err)
	}

	run.to(StateDispatching)
	if req.Format.Passthrough() {
		run.to(StatePassingThrough)
		run.to(StateStreaming)
		return Result{
			Output:      reassembled,
			ContentType: req.Format.ContentType(),
			Cleanup:     releaseOnce(run, reassembled),
		}, nil
	}

	run.to(StateTransforming)
	output, err := p.transformer.Transform(ctx, reassembled, TransformOptions{
		Format:       req.Format,
		Encode:       req.Format.Options(),
		KeepMetadata: req.KeepMetadata,
	})
	if err != nil {
		_ = reassembled.Close()
		if ctx.Err() != nil {
			return Result{}, run.abort(src, ctx.Err())
		}
		return Result{}, failure("Conversion failed", err)
	}

	run.to(StateStreaming)
	return Result{
		Output:      output,
		ContentType: req.Format.ContentType(),
		Cleanup:     releaseOnce(run, output, reassembled),
	}, nil
}

// ConvertAndStore converts body and hands the output to the storage sink,
// returning its descriptor. Requires a configured sink.
func (p *Pipeline) ConvertAndStore(ctx context.Context, body io.ReadCloser, req Request) (Descriptor, error) {
	if p.sink == nil {
		return Descriptor{}, failure("Storage sink not configured", errors.New("pipeline: nil sink"))
	}
	result, err := p.Convert(ctx, body, req)
	if err != nil {
		return Descriptor{}, err
	}
	defer result.Cleanup()

	desc, err := p.sink.Store(ctx, result.Output, SinkOptions{
		ContentType: result.ContentType,
		Format:      req.Format,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Descriptor{}, &Error{Kind: KindFailure, Message: "Upload cancelled", Status: 499, cause: ctx.Err()}
		}
		return Descriptor{}, failure("Upload failed", err)
	}
	return desc, nil
}

// run tracks per-request state transitions for diagnostics.
type run struct {
	logger *slog.Logger
	state  State
}

func (r *run) to(next State) {
	r.logger.Debug("pipeline transition",
		slog.String("from", string(r.state)),
		slog.String("to", string(next)),
	)
	r.state = next
}

func (r *run) abort(src *stream.Source, cause error) error {
	r.to(StateAborted)
	_ = src.Close()
	return &Error{Kind: KindFailure, Message: "Request aborted", Status: 499, cause: cause}
}

// releaseOnce builds the idempotent cleanup closure for a Result. Closing
// the streams in order releases the transformer output first, then the
// underlying source and its head buffering.
func releaseOnce(r *run, closers ...io.Closer) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			for _, c := range closers {
				if err := c.Close(); err != nil {
					r.logger.Debug("cleanup close", slog.Any("error", err))
				}
			}
			if r.state != StateAborted {
				r.to(StateCompleted)
			}
		})
	}
}
