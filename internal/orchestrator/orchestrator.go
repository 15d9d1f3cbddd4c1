// Package orchestrator runs compile, upload, burn-bootloader and index
// update operations against the toolchain daemon.
//
// Every operation builds an immutable request from the current selection,
// opens a stream, fans progress out to subscribers and settles in exactly one
// of: a result, a *StructuredError, or ErrCancelled.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dyluth/boardctl/internal/daemon"
	"github.com/dyluth/boardctl/internal/event"
	"github.com/dyluth/boardctl/pkg/boards"
	"github.com/google/uuid"
)

// Kind names an operation.
type Kind string

const (
	KindCompile        Kind = "compile"
	KindUpload         Kind = "upload"
	KindBurnBootloader Kind = "burn_bootloader"
	KindUpdateIndex    Kind = "update_index"
)

// Selection provides the current board and port.
type Selection interface {
	Config() boards.BoardsConfig
}

// BoardConfigs provides the user's per-board configuration.
type BoardConfigs interface {
	AppendConfigToFQBN(ctx context.Context, fqbn string) string
	SelectedProgrammer(ctx context.Context, fqbn string) (boards.Programmer, bool)
}

// Options configures an Orchestrator.
type Options struct {
	// Instance names the boardctl instance in log events.
	Instance string

	// Compile holds the compile preferences. SourceOverride is ignored here
	// and taken from CompileInput instead.
	Compile daemon.CompileOptions

	Verify        bool
	VerboseUpload bool

	// Timeout bounds every operation. Zero means no timeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// ProgressEvent is delivered for every progress and output frame.
type ProgressEvent struct {
	OperationID string  `json:"operationId"`
	Kind        Kind    `json:"kind"`
	Message     string  `json:"message"`
	Percent     float64 `json:"percent,omitempty"`
	// Stream is "stdout" or "stderr" for raw output, empty for progress.
	Stream string `json:"stream,omitempty"`
}

// CompileCompleted is fired after a successful compile.
type CompileCompleted struct {
	OperationID string                `json:"operationId"`
	SketchPath  string                `json:"sketchPath"`
	FQBN        string                `json:"fqbn"`
	Summary     daemon.CompileSummary `json:"summary"`
}

// Orchestrator runs daemon operations. It is safe for concurrent use;
// operations on different targets run concurrently.
type Orchestrator struct {
	client    *daemon.Client
	selection Selection
	configs   BoardConfigs
	opts      Options
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[string]string // target -> operation id

	indexMu     sync.Mutex
	indexStatus *daemon.IndexStatus

	progress event.Emitter[ProgressEvent]
	compiled event.Emitter[CompileCompleted]
}

// New creates an orchestrator.
func New(client *daemon.Client, selection Selection, configs BoardConfigs, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		client:    client,
		selection: selection,
		configs:   configs,
		opts:      opts,
		logger:    logger.With("component", "orchestrator"),
		inFlight:  make(map[string]string),
	}
}

// OnProgress registers fn for progress of every operation.
func (o *Orchestrator) OnProgress(fn func(ProgressEvent)) func() {
	return o.progress.On(fn)
}

// OnCompileCompleted registers fn for successful compiles.
func (o *Orchestrator) OnCompileCompleted(fn func(CompileCompleted)) func() {
	return o.compiled.On(fn)
}

// CompileInput describes one compile.
type CompileInput struct {
	SketchPath string
	// FQBN overrides the selected board when set.
	FQBN           string
	SourceOverride map[string]string
}

// Compile compiles a sketch for the selected board with its configured
// options.
func (o *Orchestrator) Compile(ctx context.Context, in CompileInput) (*daemon.CompileSummary, error) {
	fqbn, err := o.resolveFQBN(in.FQBN)
	if err != nil {
		return nil, err
	}
	fqbn = o.configs.AppendConfigToFQBN(ctx, fqbn)

	opts := o.opts.Compile
	opts.SourceOverride = in.SourceOverride
	req := daemon.NewCompileRequest(in.SketchPath, fqbn, opts)

	var summary daemon.CompileSummary
	id, err := o.run(ctx, KindCompile, target(req.SketchPath, fqbn), &summary, func(ctx context.Context) (*daemon.Stream, error) {
		return o.client.Compile(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	o.compiled.Fire(CompileCompleted{
		OperationID: id,
		SketchPath:  req.SketchPath,
		FQBN:        fqbn,
		Summary:     summary,
	})
	return &summary, nil
}

// UploadInput describes one upload.
type UploadInput struct {
	SketchPath string
	// FQBN and Port override the selection when set.
	FQBN string
	Port *boards.PortIdentifier
	// UsingProgrammer uploads through the board's selected programmer
	// instead of the port's bootloader.
	UsingProgrammer bool
	UserFields      map[string]string
}

// Upload uploads a compiled sketch.
func (o *Orchestrator) Upload(ctx context.Context, in UploadInput) (*daemon.UploadResult, error) {
	fqbn, err := o.resolveFQBN(in.FQBN)
	if err != nil {
		return nil, err
	}
	fqbn = o.configs.AppendConfigToFQBN(ctx, fqbn)

	port := in.Port
	if port == nil {
		port = o.selection.Config().SelectedPort
	}
	if port == nil && !in.UsingProgrammer {
		return nil, ErrNoPortSelected
	}

	opts := daemon.UploadOptions{
		Port:       port,
		Verify:     o.opts.Verify,
		Verbose:    o.opts.VerboseUpload,
		UserFields: in.UserFields,
	}
	if in.UsingProgrammer {
		opts.Programmer = o.programmerID(ctx, fqbn)
	}
	req := daemon.NewUploadRequest(in.SketchPath, fqbn, opts)

	var result daemon.UploadResult
	if _, err := o.run(ctx, KindUpload, target(req.SketchPath, fqbn), &result, func(ctx context.Context) (*daemon.Stream, error) {
		return o.client.Upload(ctx, req)
	}); err != nil {
		return nil, err
	}
	return &result, nil
}

// BootloaderInput describes one bootloader burn.
type BootloaderInput struct {
	FQBN string
	Port *boards.PortIdentifier
}

// BurnBootloader burns the bootloader of the selected board through its
// selected programmer.
func (o *Orchestrator) BurnBootloader(ctx context.Context, in BootloaderInput) error {
	fqbn, err := o.resolveFQBN(in.FQBN)
	if err != nil {
		return err
	}
	fqbn = o.configs.AppendConfigToFQBN(ctx, fqbn)

	port := in.Port
	if port == nil {
		port = o.selection.Config().SelectedPort
	}
	req := daemon.NewBootloaderRequest(fqbn, daemon.UploadOptions{
		Port:       port,
		Programmer: o.programmerID(ctx, fqbn),
		Verify:     o.opts.Verify,
		Verbose:    o.opts.VerboseUpload,
	})

	_, err = o.run(ctx, KindBurnBootloader, target("", fqbn), nil, func(ctx context.Context) (*daemon.Stream, error) {
		return o.client.BurnBootloader(ctx, req)
	})
	return err
}

// UpdateIndex refreshes the given indexes, or all of them.
func (o *Orchestrator) UpdateIndex(ctx context.Context, types ...daemon.IndexType) (*daemon.UpdateIndexSummary, error) {
	req := daemon.NewUpdateIndexRequest(types...)

	var summary daemon.UpdateIndexSummary
	if _, err := o.run(ctx, KindUpdateIndex, string(KindUpdateIndex), &summary, func(ctx context.Context) (*daemon.Stream, error) {
		return o.client.UpdateIndex(ctx, req)
	}); err != nil {
		return nil, err
	}
	return &summary, nil
}

// IndexUpdatedBeforeFirstConnection reports whether the daemon had already
// updated its indexes when the first client connected. The daemon is asked
// once; later calls return the cached answer.
func (o *Orchestrator) IndexUpdatedBeforeFirstConnection(ctx context.Context) (bool, error) {
	o.indexMu.Lock()
	defer o.indexMu.Unlock()

	if o.indexStatus != nil {
		return o.indexStatus.UpdatedBeforeFirstConnection, nil
	}
	status, err := o.client.IndexStatus(ctx)
	if err != nil {
		return false, fmt.Errorf("querying index status: %w", err)
	}
	o.indexStatus = &status
	return status.UpdatedBeforeFirstConnection, nil
}

// InFlight returns the ids of running operations keyed by target.
func (o *Orchestrator) InFlight() map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string]string, len(o.inFlight))
	for k, v := range o.inFlight {
		out[k] = v
	}
	return out
}

func (o *Orchestrator) resolveFQBN(fqbn string) (string, error) {
	if fqbn == "" {
		board := o.selection.Config().SelectedBoard
		if board == nil || board.FQBN == "" {
			return "", ErrNoBoardSelected
		}
		fqbn = board.FQBN
	}
	if _, err := boards.ParseFQBN(fqbn); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFQBN, err)
	}
	return fqbn, nil
}

func (o *Orchestrator) programmerID(ctx context.Context, fqbn string) string {
	p, ok := o.configs.SelectedProgrammer(ctx, boards.SanitizeFQBN(fqbn))
	if !ok {
		return ""
	}
	return p.ID
}

func target(sketchPath, fqbn string) string {
	return sketchPath + "|" + boards.SanitizeFQBN(fqbn)
}

func (o *Orchestrator) acquire(target, id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, busy := o.inFlight[target]; busy {
		return false
	}
	o.inFlight[target] = id
	return true
}

func (o *Orchestrator) release(target string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, target)
}

// run drives one operation stream to its terminal frame. It returns the
// operation id and nil, ErrBusy, ErrCancelled or a *StructuredError.
func (o *Orchestrator) run(ctx context.Context, kind Kind, target string, result any, open func(context.Context) (*daemon.Stream, error)) (string, error) {
	id := uuid.NewString()
	if !o.acquire(target, id) {
		return id, fmt.Errorf("%s %s: %w", kind, target, ErrBusy)
	}
	defer o.release(target)

	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	attrs := []any{"operation_id", id, "kind", kind, "target", target}
	o.logEvent(slog.LevelInfo, "operation_started", attrs...)

	settle := func(err error) (string, error) {
		latency := []any{"latency_ms", time.Since(start).Milliseconds()}
		var structured *StructuredError
		switch {
		case err == nil:
			o.logEvent(slog.LevelInfo, "operation_completed", append(attrs, latency...)...)
		case errors.Is(err, ErrCancelled):
			o.logEvent(slog.LevelInfo, "operation_cancelled", append(attrs, latency...)...)
		case errors.As(err, &structured):
			o.logEvent(slog.LevelError, "operation_failed", append(attrs, append(latency,
				"error_type", structured.Type,
				"error", structured.Message,
				"locations", len(structured.Locations))...)...)
		}
		return id, err
	}

	stream, err := open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return settle(cancelled(kind, id))
		}
		return settle(newStructuredError(err.Error(), nil, nil))
	}
	defer stream.Close()

	var output outputBuffer
	for {
		f, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return settle(cancelled(kind, id))
			}
			return settle(newStructuredError(err.Error(), nil, &output))
		}

		switch f.Kind {
		case daemon.FrameProgress:
			o.progress.Fire(ProgressEvent{OperationID: id, Kind: kind, Message: f.Message, Percent: f.Percent})

		case daemon.FrameOutput:
			output.write(f.Text)
			o.progress.Fire(ProgressEvent{OperationID: id, Kind: kind, Message: f.Text, Stream: f.Stream})

		case daemon.FrameResult:
			if result != nil {
				if err := f.Decode(result); err != nil {
					return settle(newStructuredError(err.Error(), nil, &output))
				}
			}
			return settle(nil)

		case daemon.FrameError:
			daemonErr := f.Error.Err(stream.Action())
			if daemonErr.Cancelled() || ctx.Err() != nil {
				return settle(cancelled(kind, id))
			}
			return settle(newStructuredError(daemonErr.Message, daemonErr.Diagnostics, &output))

		default:
			o.logger.Debug("ignoring frame", "operation_id", id, "kind", f.Kind)
		}
	}
}

func cancelled(kind Kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrCancelled)
}

// logEvent emits one structured operation event.
func (o *Orchestrator) logEvent(level slog.Level, eventType string, attrs ...any) {
	attrs = append([]any{"event_type", eventType, "instance", o.opts.Instance}, attrs...)
	o.logger.Log(context.Background(), level, eventType, attrs...)
}
