package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dyluth/boardctl/internal/boardconfig"
	"github.com/dyluth/boardctl/internal/boardlist"
	"github.com/dyluth/boardctl/internal/boardsconfig"
	"github.com/dyluth/boardctl/internal/config"
	"github.com/dyluth/boardctl/internal/daemon"
	"github.com/dyluth/boardctl/internal/orchestrator"
	"github.com/dyluth/boardctl/internal/persistence"
	"github.com/dyluth/boardctl/internal/projector"
	"github.com/redis/go-redis/v9"
)

const flushTimeout = 5 * time.Second

// stateSink is a projector sink that can also read the state back.
type stateSink interface {
	projector.StateSink
	projector.StateReader
}

// app holds every component of one boardctl process, wired together.
type app struct {
	cfg    *config.BoardctlConfig
	logger *slog.Logger

	store  persistence.Service
	ping   func(ctx context.Context) error
	redis  *persistence.RedisStore // nil with the sqlite backend
	client *daemon.Client

	configs    *boardconfig.Store
	matcher    *boardlist.Matcher
	controller *boardsconfig.Controller
	orch       *orchestrator.Orchestrator
	sink       stateSink
	projector  *projector.Projector
	gate       *projector.Gate

	stopProjector context.CancelFunc
	projectorDone chan struct{}
	unsubscribe   []func()
	closeStore    func() error
}

// loadConfig reads boardctl.yml and applies the global flag overrides. A
// missing file is accepted when --socket names the daemon.
func loadConfig() (*config.BoardctlConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || socketPath == "" {
			return nil, err
		}
		cfg = &config.BoardctlConfig{Version: "1.0"}
	}

	if socketPath != "" {
		cfg.Daemon.Socket = socketPath
	}
	if instanceName != "" {
		cfg.Instance = instanceName
	}
	if daemonTimeout != "" {
		d, err := time.ParseDuration(daemonTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout: %w", err)
		}
		cfg.Daemon.Timeout = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to stderr so they never mix
// with command output.
func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}

// openStore opens the configured persistence backend.
func openStore(cfg *config.BoardctlConfig) (*persistence.RedisStore, persistence.Service, func(context.Context) error, func() error, error) {
	switch cfg.Persistence.Backend {
	case config.BackendSQLite:
		store, err := persistence.OpenSQLite(cfg.Persistence.SQLitePath)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return nil, store, store.Ping, store.Close, nil
	default:
		opts, err := redis.ParseURL(cfg.Persistence.RedisURL)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		store, err := persistence.NewRedisStore(opts, cfg.Instance)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		return store, store, store.Ping, store.Close, nil
	}
}

// newApp wires every component and restores the persisted selection.
// Projections wait for gate; a nil gate projects immediately.
func newApp(ctx context.Context, cfg *config.BoardctlConfig, client *daemon.Client, gate *projector.Gate, logger *slog.Logger) (*app, error) {
	redisStore, store, ping, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := ping(ctx); err != nil {
		closeStore()
		return nil, fmt.Errorf("persistence backend not reachable: %w", err)
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		ping:       ping,
		redis:      redisStore,
		client:     client,
		closeStore: closeStore,
		gate:       gate,
	}

	if redisStore != nil {
		a.sink, err = projector.NewRedisSink(redisStore.Client(), cfg.Instance)
	} else {
		a.sink, err = projector.NewStoreSink(store, cfg.Instance)
	}
	if err != nil {
		closeStore()
		return nil, err
	}

	a.configs = boardconfig.NewStore(store, cfg.Instance, client, logger)
	a.matcher = boardlist.NewMatcher(store, cfg.Instance, logger)
	a.controller = boardsconfig.NewController(a.matcher, store, cfg.Instance, logger)
	a.controller.Restore(ctx)

	a.orch = orchestrator.New(client, a.controller, a.configs, orchestrator.Options{
		Instance:      cfg.Instance,
		Compile:       cfg.Compile.Options(),
		Verify:        cfg.Upload.Verify,
		VerboseUpload: cfg.Upload.Verbose,
		Timeout:       cfg.Daemon.Timeout,
		Logger:        logger,
	})

	a.projector = projector.New(a.sink, a.controller, client, a.configs, gate, logger)
	a.unsubscribe = append(a.unsubscribe,
		a.controller.OnChange(a.projector.HandleBoardsConfigChange),
		a.configs.OnChange(a.projector.HandleBoardConfigChange),
		a.orch.OnCompileCompleted(a.projector.HandleCompileCompleted),
	)

	runCtx, cancel := context.WithCancel(context.Background())
	a.stopProjector = cancel
	a.projectorDone = make(chan struct{})
	go func() {
		defer close(a.projectorDone)
		a.projector.Run(runCtx)
	}()

	return a, nil
}

// refreshPorts loads the daemon's current detected ports into the matcher.
// Failures leave the previous snapshot in place.
func (a *app) refreshPorts(ctx context.Context) {
	ports, err := a.client.DetectedPorts(ctx)
	if err != nil {
		a.logger.Warn("failed to read detected ports", "error", err)
		return
	}
	a.matcher.UpdateDetectedPorts(ports)
}

// selectedFQBN returns fqbn, or the selected board's fqbn when empty.
func (a *app) selectedFQBN(fqbn string) (string, error) {
	if fqbn != "" {
		return fqbn, nil
	}
	board := a.controller.Config().SelectedBoard
	if board == nil || board.FQBN == "" {
		return "", orchestrator.ErrNoBoardSelected
	}
	return board.FQBN, nil
}

// Close waits for pending projections, then releases every component.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if a.gate == nil || a.gate.IsOpen() {
		if err := a.projector.Flush(ctx); err != nil {
			a.logger.Warn("pending state projections dropped", "error", err)
		}
	}

	a.stopProjector()
	<-a.projectorDone

	for _, unsubscribe := range a.unsubscribe {
		unsubscribe()
	}
	a.controller.Close()
	return a.closeStore()
}

// setup loads the config, builds the logger and the daemon client, and wires
// the app. Callers must Close the returned app.
func setup(ctx context.Context, gate *projector.Gate, override func(*config.BoardctlConfig)) (*app, error) {
	logger, err := newLogger(logLevel)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, configError(err)
	}
	if override != nil {
		override(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, configError(err)
		}
	}

	client := daemon.NewClient(cfg.Daemon.Socket, logger)
	a, err := newApp(ctx, cfg, client, gate, logger)
	if err != nil {
		return nil, persistenceError(cfg, err)
	}
	return a, nil
}
