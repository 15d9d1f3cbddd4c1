// Package boardconfig resolves and persists the configuration of boards: their
// config options, programmers and the user's selections among them.
//
// Records are cached per (fqbn, installed platform version) and lazily
// populated from the daemon's board details. Public methods never return
// errors: daemon and persistence failures are logged and resolve to the empty
// sentinel record or to false.
package boardconfig

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/dyluth/boardctl/internal/event"
	"github.com/dyluth/boardctl/internal/persistence"
	"github.com/dyluth/boardctl/pkg/boards"
)

// ErrPlatformNotInstalled is returned by a DetailsProvider when the board's
// platform is not installed.
var ErrPlatformNotInstalled = errors.New("platform not installed")

// DetailsProvider is the daemon boundary the store fetches board details through.
type DetailsProvider interface {
	// BoardDetails returns the daemon's description of the board.
	BoardDetails(ctx context.Context, fqbn string) (*boards.BoardDetails, error)

	// PlatformVersion returns the installed version of the board's platform,
	// or "" if the platform is not installed.
	PlatformVersion(ctx context.Context, fqbn string) (string, error)
}

// OptionSelection selects one value of one config option.
type OptionSelection struct {
	Option        string `json:"option"`
	SelectedValue string `json:"selectedValue"`
}

// Store owns every BoardConfigRecord. Operations are serialized so each
// read-modify-write of a record completes before the next begins.
type Store struct {
	cache    *ConfigCache
	provider DetailsProvider
	logger   *slog.Logger

	mu      sync.Mutex
	changes event.Emitter[boards.BoardConfigChangeEvent]
}

// NewStore creates a configuration store. A nil logger uses slog.Default().
func NewStore(store persistence.Service, namespace string, provider DetailsProvider, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cache:    NewConfigCache(store, namespace),
		provider: provider,
		logger:   logger.With("component", "boardconfig"),
	}
}

// OnChange registers fn for configuration changes and returns its unsubscribe function.
func (s *Store) OnChange(fn func(boards.BoardConfigChangeEvent)) func() {
	return s.changes.On(fn)
}

// Data returns the configuration record of the board. It returns the empty
// sentinel when fqbn is empty, the platform is not installed, or the details
// cannot be fetched.
func (s *Store) Data(ctx context.Context, fqbn string) boards.BoardConfigRecord {
	if fqbn == "" {
		return boards.EmptyRecord()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version, ok := s.resolveVersion(ctx, fqbn)
	if !ok {
		return boards.EmptyRecord()
	}
	return s.load(ctx, fqbn, version)
}

// SelectConfigOption selects a single option value. See SelectConfigOptions.
func (s *Store) SelectConfigOption(ctx context.Context, fqbn, option, selectedValue string) bool {
	return s.SelectConfigOptions(ctx, fqbn, []OptionSelection{{Option: option, SelectedValue: selectedValue}})
}

// SelectConfigOptions applies every selection atomically: if any option or
// value is unknown nothing is changed and false is returned. On success the
// record is persisted and a change event is fired.
func (s *Store) SelectConfigOptions(ctx context.Context, fqbn string, selections []OptionSelection) bool {
	if fqbn == "" || len(selections) == 0 {
		return false
	}

	changed := func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()

		version, ok := s.resolveVersion(ctx, fqbn)
		if !ok {
			return false
		}

		record := s.load(ctx, fqbn, version).Clone()
		for _, sel := range selections {
			if !selectValue(record.ConfigOptions, sel) {
				s.logger.Debug("rejected config option selection", "fqbn", fqbn, "option", sel.Option, "value", sel.SelectedValue)
				return false
			}
		}

		if err := s.cache.Put(ctx, fqbn, version, record); err != nil {
			s.logger.Error("failed to persist config option selection", "fqbn", fqbn, "error", err)
			return false
		}
		return true
	}()

	if changed {
		s.changes.Fire(boards.BoardConfigChangeEvent{FQBNs: []string{fqbn}})
	}
	return changed
}

// selectValue marks the selected value of the named option and clears its
// siblings. Returns false if the option or value does not exist.
func selectValue(options []boards.ConfigOption, sel OptionSelection) bool {
	for i := range options {
		if options[i].Option != sel.Option {
			continue
		}
		values := options[i].Values
		found := false
		for _, v := range values {
			if v.Value == sel.SelectedValue {
				found = true
				break
			}
		}
		if !found {
			return false
		}
		for j := range values {
			values[j].Selected = values[j].Value == sel.SelectedValue
		}
		return true
	}
	return false
}

// SelectProgrammer sets the board's selected programmer. Programmers unknown
// to the record are rejected.
func (s *Store) SelectProgrammer(ctx context.Context, fqbn string, programmer boards.Programmer) bool {
	if fqbn == "" {
		return false
	}

	changed := func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()

		version, ok := s.resolveVersion(ctx, fqbn)
		if !ok {
			return false
		}

		record := s.load(ctx, fqbn, version).Clone()
		known, ok := matchProgrammer(record.Programmers, programmer)
		if !ok {
			s.logger.Debug("rejected unknown programmer", "fqbn", fqbn, "programmer", programmer.ID, "platform", programmer.Platform)
			return false
		}
		record.SelectedProgrammer = &known

		if err := s.cache.Put(ctx, fqbn, version, record); err != nil {
			s.logger.Error("failed to persist programmer selection", "fqbn", fqbn, "error", err)
			return false
		}
		return true
	}()

	if changed {
		s.changes.Fire(boards.BoardConfigChangeEvent{FQBNs: []string{fqbn}})
	}
	return changed
}

// matchProgrammer finds p by id. When several programmers share the id, the
// platform disambiguates.
func matchProgrammer(programmers []boards.Programmer, p boards.Programmer) (boards.Programmer, bool) {
	var candidates []boards.Programmer
	for _, candidate := range programmers {
		if candidate.ID == p.ID {
			candidates = append(candidates, candidate)
		}
	}
	switch len(candidates) {
	case 0:
		return boards.Programmer{}, false
	case 1:
		return candidates[0], true
	}
	for _, candidate := range candidates {
		if candidate.Platform == p.Platform {
			return candidate, true
		}
	}
	return boards.Programmer{}, false
}

// SelectedProgrammer returns the board's selected programmer, if any.
func (s *Store) SelectedProgrammer(ctx context.Context, fqbn string) (boards.Programmer, bool) {
	record := s.Data(ctx, fqbn)
	if record.SelectedProgrammer == nil {
		return boards.Programmer{}, false
	}
	return *record.SelectedProgrammer, true
}

// AppendConfigToFQBN returns fqbn with the selected config values appended as
// a key=value suffix. An fqbn that already carries options, or a board
// without selected options, is returned unchanged.
func (s *Store) AppendConfigToFQBN(ctx context.Context, fqbn string) string {
	if fqbn == "" || boards.HasOptions(fqbn) {
		return fqbn
	}
	parsed, err := boards.ParseFQBN(fqbn)
	if err != nil {
		return fqbn
	}

	record := s.Data(ctx, fqbn)
	var options []boards.OptionPair
	for _, opt := range record.ConfigOptions {
		if v, ok := opt.SelectedValue(); ok {
			options = append(options, boards.OptionPair{Key: opt.Option, Value: v.Value})
		}
	}
	if len(options) == 0 {
		return fqbn
	}
	return parsed.WithOptions(options).String()
}

// HandlePlatformInstalled refetches the records of the platform's boards that
// are not cached at the installed version or were cached as the empty
// sentinel. Non-empty records are left untouched so user selections survive.
// Fires one change event listing every refreshed board.
func (s *Store) HandlePlatformInstalled(ctx context.Context, platform boards.PlatformEvent) {
	var refreshed []string

	func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for _, board := range platform.Boards {
			if board.FQBN == "" {
				continue
			}
			version := platform.Version
			if version == "" {
				v, ok := s.resolveVersion(ctx, board.FQBN)
				if !ok {
					continue
				}
				version = v
			}

			cached, found, err := s.cache.Get(ctx, board.FQBN, version)
			if err != nil {
				s.logger.Error("failed to read cached config", "fqbn", board.FQBN, "error", err)
				continue
			}
			if found && !cached.IsEmpty() {
				continue
			}

			if _, ok := s.fetch(ctx, board.FQBN, version); ok {
				refreshed = append(refreshed, board.FQBN)
			}
		}
	}()

	s.logger.Info("platform installed", "platform", platform.PlatformID, "version", platform.Version, "refreshed", len(refreshed))
	if len(refreshed) > 0 {
		s.changes.Fire(boards.BoardConfigChangeEvent{FQBNs: refreshed})
	}
}

// HandlePlatformUninstalled announces that the platform's boards now resolve
// to the empty sentinel. Nothing is written: the cached records stay keyed by
// the uninstalled version and are found again if it is reinstalled.
func (s *Store) HandlePlatformUninstalled(ctx context.Context, platform boards.PlatformEvent) {
	var affected []string
	for _, board := range platform.Boards {
		if board.FQBN != "" {
			affected = append(affected, board.FQBN)
		}
	}

	s.logger.Info("platform uninstalled", "platform", platform.PlatformID, "version", platform.Version, "boards", len(affected))
	if len(affected) > 0 {
		s.changes.Fire(boards.BoardConfigChangeEvent{FQBNs: affected})
	}
}

// resolveVersion returns the installed platform version for fqbn.
func (s *Store) resolveVersion(ctx context.Context, fqbn string) (string, bool) {
	version, err := s.provider.PlatformVersion(ctx, fqbn)
	if err != nil {
		s.logFetchError("failed to resolve platform version", fqbn, err)
		return "", false
	}
	return version, version != ""
}

// load returns the cached record when complete, and fetches it otherwise.
// Caller must hold s.mu.
func (s *Store) load(ctx context.Context, fqbn, version string) boards.BoardConfigRecord {
	cached, found, err := s.cache.Get(ctx, fqbn, version)
	if err != nil {
		s.logger.Error("failed to read cached config", "fqbn", fqbn, "version", version, "error", err)
	}
	if found && cached.Complete() {
		return cached
	}

	record, ok := s.fetch(ctx, fqbn, version)
	if !ok {
		return boards.EmptyRecord()
	}
	return record
}

// fetch loads board details from the daemon and caches the resulting record.
// Caller must hold s.mu.
func (s *Store) fetch(ctx context.Context, fqbn, version string) (boards.BoardConfigRecord, bool) {
	details, err := s.provider.BoardDetails(ctx, fqbn)
	if err != nil {
		s.logFetchError("failed to fetch board details", fqbn, err)
		return boards.BoardConfigRecord{}, false
	}
	if details == nil {
		s.logger.Warn("board details not available", "fqbn", fqbn)
		return boards.BoardConfigRecord{}, false
	}

	record := recordFromDetails(details)
	if err := s.cache.Put(ctx, fqbn, version, record); err != nil {
		s.logger.Error("failed to persist board config", "fqbn", fqbn, "error", err)
	}
	return record, true
}

func recordFromDetails(details *boards.BoardDetails) boards.BoardConfigRecord {
	record := boards.BoardConfigRecord{
		ConfigOptions:       details.ConfigOptions,
		Programmers:         details.Programmers,
		DefaultProgrammerID: details.DefaultProgrammerID,
	}
	if record.ConfigOptions == nil {
		record.ConfigOptions = []boards.ConfigOption{}
	}
	if record.Programmers == nil {
		record.Programmers = []boards.Programmer{}
	}
	if record.DefaultProgrammerID != "" {
		if p, ok := record.Programmer(record.DefaultProgrammerID); ok {
			record.SelectedProgrammer = &p
		}
	}
	return record.Clone()
}

// logFetchError logs platform-not-installed at warn level and anything else at error level.
func (s *Store) logFetchError(msg, fqbn string, err error) {
	if IsPlatformNotInstalled(err) {
		s.logger.Warn(msg, "fqbn", fqbn, "error", err)
		return
	}
	s.logger.Error(msg, "fqbn", fqbn, "error", err)
}

// IsPlatformNotInstalled reports whether err means the board's platform is
// missing. Errors crossing the daemon boundary are recognized by message.
func IsPlatformNotInstalled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPlatformNotInstalled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "platform") && strings.Contains(msg, "not installed")
}
