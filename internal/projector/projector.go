// Package projector maps internal boardctl state onto the consumer-facing
// state schema.
//
// The projector keeps no state of its own. It reacts to selection changes,
// board configuration changes and completed compiles by recomputing the
// affected fields and writing each one to a StateSink. Writes run one at a
// time in the order their triggers arrived, and each waits for the readiness
// gate first.
package projector

import (
	"context"
	"log/slog"

	"github.com/dyluth/boardctl/internal/boardconfig"
	"github.com/dyluth/boardctl/internal/daemon"
	"github.com/dyluth/boardctl/internal/orchestrator"
	"github.com/dyluth/boardctl/pkg/boards"
)

// Projected fields.
const (
	FieldFQBN           = "fqbn"
	FieldBoardDetails   = "boardDetails"
	FieldPort           = "port"
	FieldSketchPath     = "sketchPath"
	FieldUserDirPath    = "userDirPath"
	FieldDataDirPath    = "dataDirPath"
	FieldCompileSummary = "compileSummary"
)

// BoardDetails is the projected form of a board's details.
type BoardDetails struct {
	FQBN                string                  `json:"fqbn"`
	Name                string                  `json:"name,omitempty"`
	BuildProperties     map[string]string       `json:"buildProperties"`
	ConfigOptions       []boards.ConfigOption   `json:"configOptions"`
	ToolsDependencies   []boards.ToolDependency `json:"toolsDependencies"`
	Programmers         []boards.Programmer     `json:"programmers"`
	DefaultProgrammerID string                  `json:"defaultProgrammerId,omitempty"`
}

// CompileSummary is the projected form of a compile result.
type CompileSummary struct {
	BuildPath              string               `json:"buildPath"`
	BuildProperties        map[string]string    `json:"buildProperties"`
	UsedLibraries          []string             `json:"usedLibraries,omitempty"`
	ExecutableSectionsSize []daemon.SectionSize `json:"executableSectionsSize,omitempty"`
	BoardPlatform          string               `json:"boardPlatform,omitempty"`
	BuildPlatform          string               `json:"buildPlatform,omitempty"`
}

// Selection provides the current board and port.
type Selection interface {
	Config() boards.BoardsConfig
}

// ConfigRecords provides persisted board configuration.
type ConfigRecords interface {
	Data(ctx context.Context, fqbn string) boards.BoardConfigRecord
}

// DetailsFetcher fetches board details from the daemon.
type DetailsFetcher interface {
	BoardDetails(ctx context.Context, fqbn string) (*boards.BoardDetails, error)
}

// Projector projects state changes into a StateSink.
type Projector struct {
	sink      StateSink
	selection Selection
	details   DetailsFetcher
	records   ConfigRecords
	gate      *Gate
	queue     *workQueue
	logger    *slog.Logger
}

// New creates a projector. Nothing is written until Run is called and gate
// is open.
func New(sink StateSink, selection Selection, details DetailsFetcher, records ConfigRecords, gate *Gate, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	if gate == nil {
		gate = OpenGate()
	}
	return &Projector{
		sink:      sink,
		selection: selection,
		details:   details,
		records:   records,
		gate:      gate,
		queue:     newWorkQueue(),
		logger:    logger.With("component", "projector"),
	}
}

// Run processes projections until ctx is cancelled.
func (p *Projector) Run(ctx context.Context) {
	p.logger.Info("projector started")
	p.queue.run(ctx)
	p.logger.Info("projector stopped")
}

// Flush blocks until every projection enqueued before the call has been
// applied, or ctx ends.
func (p *Projector) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !p.queue.enqueue(func(context.Context) { close(done) }) {
		return context.Canceled
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleBoardsConfigChange projects the halves of the selection that changed.
func (p *Projector) HandleBoardsConfigChange(evt boards.BoardsConfigChangeEvent) {
	if evt.BoardChanged {
		board := evt.SelectedBoard
		p.queue.enqueue(func(ctx context.Context) {
			p.projectBoard(ctx, board)
		})
	}
	if evt.PortChanged {
		port := evt.SelectedPort
		p.queue.enqueue(func(ctx context.Context) {
			if port == nil {
				p.set(ctx, FieldPort, nil)
				return
			}
			p.set(ctx, FieldPort, *port)
		})
	}
}

// HandleBoardConfigChange reprojects the board details when the selected
// board's configuration changed.
func (p *Projector) HandleBoardConfigChange(evt boards.BoardConfigChangeEvent) {
	p.queue.enqueue(func(ctx context.Context) {
		board := p.selection.Config().SelectedBoard
		if board == nil || board.FQBN == "" {
			return
		}
		selected := boards.SanitizeFQBN(board.FQBN)
		for _, fqbn := range evt.FQBNs {
			if boards.SanitizeFQBN(fqbn) == selected {
				p.setBoardDetails(ctx, board.FQBN)
				return
			}
		}
	})
}

// HandleCompileCompleted projects the summary of a successful compile.
func (p *Projector) HandleCompileCompleted(evt orchestrator.CompileCompleted) {
	p.queue.enqueue(func(ctx context.Context) {
		p.set(ctx, FieldSketchPath, evt.SketchPath)
		p.set(ctx, FieldCompileSummary, CompileSummary{
			BuildPath:              evt.Summary.BuildPath,
			BuildProperties:        ParseBuildProperties(evt.Summary.BuildProperties, p.logger),
			UsedLibraries:          evt.Summary.UsedLibraries,
			ExecutableSectionsSize: evt.Summary.ExecutableSectionsSize,
			BoardPlatform:          evt.Summary.BoardPlatform,
			BuildPlatform:          evt.Summary.BuildPlatform,
		})
	})
}

// ClearSketch removes the projected sketch and its compile summary, used when
// the sketch folder disappeared.
func (p *Projector) ClearSketch() {
	p.queue.enqueue(func(ctx context.Context) {
		p.set(ctx, FieldSketchPath, nil)
		p.set(ctx, FieldCompileSummary, nil)
	})
}

// SetDirectories projects the user and data directories.
func (p *Projector) SetDirectories(userDir, dataDir string) {
	p.queue.enqueue(func(ctx context.Context) {
		p.set(ctx, FieldUserDirPath, userDir)
		p.set(ctx, FieldDataDirPath, dataDir)
	})
}

// ProjectSelection projects the whole current selection, used at startup.
func (p *Projector) ProjectSelection() {
	p.queue.enqueue(func(ctx context.Context) {
		config := p.selection.Config()
		p.projectBoard(ctx, config.SelectedBoard)
		if config.SelectedPort == nil {
			p.set(ctx, FieldPort, nil)
		} else {
			p.set(ctx, FieldPort, *config.SelectedPort)
		}
	})
}

func (p *Projector) projectBoard(ctx context.Context, board *boards.BoardIdentifier) {
	if board == nil || board.FQBN == "" {
		p.set(ctx, FieldFQBN, nil)
		p.set(ctx, FieldBoardDetails, nil)
		return
	}
	p.set(ctx, FieldFQBN, board.FQBN)
	p.setBoardDetails(ctx, board.FQBN)
}

func (p *Projector) setBoardDetails(ctx context.Context, fqbn string) {
	view, ok := p.boardDetails(ctx, fqbn)
	if !ok {
		p.set(ctx, FieldBoardDetails, nil)
		return
	}
	p.set(ctx, FieldBoardDetails, view)
}

// boardDetails fetches fresh details and substitutes the persisted config
// options, when there are any, so user selections are not replaced by the
// daemon's defaults.
func (p *Projector) boardDetails(ctx context.Context, fqbn string) (BoardDetails, bool) {
	details, err := p.details.BoardDetails(ctx, fqbn)
	if err != nil {
		if boardconfig.IsPlatformNotInstalled(err) {
			p.logger.Warn("board details unavailable, platform not installed", "fqbn", fqbn)
		} else {
			p.logger.Error("failed to fetch board details", "fqbn", fqbn, "error", err)
		}
		return BoardDetails{}, false
	}

	view := BoardDetails{
		FQBN:                details.FQBN,
		Name:                details.Name,
		BuildProperties:     ParseBuildProperties(details.BuildProperties, p.logger),
		ConfigOptions:       details.ConfigOptions,
		ToolsDependencies:   details.RequiredTools,
		Programmers:         details.Programmers,
		DefaultProgrammerID: details.DefaultProgrammerID,
	}
	if view.FQBN == "" {
		view.FQBN = fqbn
	}
	if record := p.records.Data(ctx, fqbn); len(record.ConfigOptions) > 0 {
		view.ConfigOptions = record.ConfigOptions
	}
	return view, true
}

// set waits for the gate and writes one field. Failures are logged.
func (p *Projector) set(ctx context.Context, field string, value any) {
	if err := p.gate.Wait(ctx); err != nil {
		return
	}
	if err := p.sink.Set(ctx, field, value); err != nil {
		p.logger.Error("failed to project state", "field", field, "error", err)
		return
	}
	p.logger.Debug("projected state", "field", field)
}
