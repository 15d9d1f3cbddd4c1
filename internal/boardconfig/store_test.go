package boardconfig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/dyluth/boardctl/internal/testutil"
	"github.com/dyluth/boardctl/pkg/boards"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	edbg  = boards.Programmer{ID: "edbg", Name: "Atmel EDBG", Platform: "Arduino SAMD Boards"}
	jlink = boards.Programmer{ID: "jlink", Name: "Segger J-Link", Platform: "Arduino SAMD Boards"}
)

func speedOption() boards.ConfigOption {
	return boards.ConfigOption{
		Option: "speed",
		Label:  "Speed",
		Values: []boards.ConfigValue{
			{Value: "fast", Label: "Fast", Selected: true},
			{Value: "slow", Label: "Slow"},
		},
	}
}

func debugOption() boards.ConfigOption {
	return boards.ConfigOption{
		Option: "debug",
		Label:  "Debug",
		Values: []boards.ConfigValue{
			{Value: "off", Label: "Off", Selected: true},
			{Value: "on", Label: "On"},
		},
	}
}

// fakeProvider is an in-memory DetailsProvider that counts fetches.
type fakeProvider struct {
	mu         sync.Mutex
	versions   map[string]string
	details    map[string]*boards.BoardDetails
	detailsErr error
	fetches    map[string]int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		versions: map[string]string{},
		details:  map[string]*boards.BoardDetails{},
		fetches:  map[string]int{},
	}
}

func (p *fakeProvider) BoardDetails(ctx context.Context, fqbn string) (*boards.BoardDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches[fqbn]++
	if p.detailsErr != nil {
		return nil, p.detailsErr
	}
	d, ok := p.details[fqbn]
	if !ok {
		return nil, fmt.Errorf("board %s: %w", fqbn, ErrPlatformNotInstalled)
	}
	copied := *d
	return &copied, nil
}

func (p *fakeProvider) PlatformVersion(ctx context.Context, fqbn string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.versions[fqbn], nil
}

func (p *fakeProvider) fetchCount(fqbn string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches[fqbn]
}

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// setupTestStore creates a store over miniredis with board a:b:c installed at 1.0.0.
func setupTestStore(t *testing.T) (*Store, *fakeProvider, *bytes.Buffer) {
	backing, _ := testutil.NewRedisStore(t)
	provider := newFakeProvider()
	provider.versions["a:b:c"] = "1.0.0"
	provider.details["a:b:c"] = &boards.BoardDetails{
		FQBN:          "a:b:c",
		ConfigOptions: []boards.ConfigOption{speedOption(), debugOption()},
		Programmers:   []boards.Programmer{edbg, jlink},
	}

	var logs bytes.Buffer
	return NewStore(backing, testutil.TestNamespace, provider, testLogger(&logs)), provider, &logs
}

func TestData(t *testing.T) {
	ctx := context.Background()

	t.Run("empty fqbn returns sentinel without calling the daemon", func(t *testing.T) {
		store, provider, _ := setupTestStore(t)
		assert.Equal(t, boards.EmptyRecord(), store.Data(ctx, ""))
		assert.Equal(t, 0, provider.fetchCount(""))
	})

	t.Run("platform not installed returns sentinel", func(t *testing.T) {
		store, provider, _ := setupTestStore(t)
		assert.Equal(t, boards.EmptyRecord(), store.Data(ctx, "x:y:z"))
		assert.Equal(t, 0, provider.fetchCount("x:y:z"))
	})

	t.Run("empty cache fetches and persists under the version key", func(t *testing.T) {
		backing, mr := testutil.NewRedisStore(t)
		provider := newFakeProvider()
		provider.versions["a:b:c"] = "1.0.0"
		provider.details["a:b:c"] = &boards.BoardDetails{
			ConfigOptions: []boards.ConfigOption{speedOption()},
			Programmers:   []boards.Programmer{edbg, jlink},
		}
		store := NewStore(backing, testutil.TestNamespace, provider, testLogger(&bytes.Buffer{}))

		record := store.Data(ctx, "a:b:c")
		assert.Equal(t, []boards.ConfigOption{speedOption()}, record.ConfigOptions)
		assert.Equal(t, []boards.Programmer{edbg, jlink}, record.Programmers)
		assert.Nil(t, record.SelectedProgrammer)

		assert.True(t, mr.Exists("test-instance-configOptions-1.0.0-a:b:c"))
	})

	t.Run("complete cache hit is served without refetch", func(t *testing.T) {
		store, provider, _ := setupTestStore(t)
		store.Data(ctx, "a:b:c")
		store.Data(ctx, "a:b:c")
		assert.Equal(t, 1, provider.fetchCount("a:b:c"))
	})

	t.Run("default programmer is preselected", func(t *testing.T) {
		store, provider, _ := setupTestStore(t)
		provider.details["a:b:c"].DefaultProgrammerID = "jlink"

		record := store.Data(ctx, "a:b:c")
		assert.Equal(t, "jlink", record.DefaultProgrammerID)
		require.NotNil(t, record.SelectedProgrammer)
		assert.Equal(t, jlink, *record.SelectedProgrammer)
	})

	t.Run("missing platform is logged at warn level and not cached", func(t *testing.T) {
		store, provider, logs := setupTestStore(t)
		provider.versions["d:e:f"] = "2.0.0"

		assert.Equal(t, boards.EmptyRecord(), store.Data(ctx, "d:e:f"))
		assert.Equal(t, boards.EmptyRecord(), store.Data(ctx, "d:e:f"))
		assert.Equal(t, 2, provider.fetchCount("d:e:f"))
		assert.Contains(t, logs.String(), "level=WARN")
		assert.NotContains(t, logs.String(), "level=ERROR")
	})

	t.Run("unexpected daemon error is logged at error level", func(t *testing.T) {
		store, provider, logs := setupTestStore(t)
		provider.detailsErr = errors.New("connection reset by peer")

		assert.Equal(t, boards.EmptyRecord(), store.Data(ctx, "a:b:c"))
		assert.Contains(t, logs.String(), "level=ERROR")
	})
}

func TestStalenessGuard(t *testing.T) {
	ctx := context.Background()
	backing, _ := testutil.NewRedisStore(t)
	provider := newFakeProvider()
	provider.versions["a:b:c"] = "1.0.0"
	provider.details["a:b:c"] = &boards.BoardDetails{
		ConfigOptions: []boards.ConfigOption{speedOption()},
		Programmers:   []boards.Programmer{edbg},
	}

	// A record written before programmers were tracked.
	stale := boards.BoardConfigRecord{ConfigOptions: []boards.ConfigOption{speedOption()}}
	require.NoError(t, backing.Set(ctx, boards.ConfigOptionsKey(testutil.TestNamespace, "1.0.0", "a:b:c"), stale))

	store := NewStore(backing, testutil.TestNamespace, provider, testLogger(&bytes.Buffer{}))
	record := store.Data(ctx, "a:b:c")

	assert.Equal(t, 1, provider.fetchCount("a:b:c"))
	assert.Equal(t, []boards.Programmer{edbg}, record.Programmers)
}

func TestSelectConfigOption(t *testing.T) {
	ctx := context.Background()

	t.Run("selects value and deselects siblings", func(t *testing.T) {
		store, _, _ := setupTestStore(t)
		var events []boards.BoardConfigChangeEvent
		store.OnChange(func(e boards.BoardConfigChangeEvent) { events = append(events, e) })

		assert.True(t, store.SelectConfigOption(ctx, "a:b:c", "speed", "slow"))

		record := store.Data(ctx, "a:b:c")
		for _, opt := range record.ConfigOptions {
			selected := 0
			for _, v := range opt.Values {
				if v.Selected {
					selected++
				}
			}
			assert.Equal(t, 1, selected, "option %s", opt.Option)
		}
		value, ok := record.ConfigOptions[0].SelectedValue()
		require.True(t, ok)
		assert.Equal(t, "slow", value.Value)
		assert.Equal(t, []boards.BoardConfigChangeEvent{{FQBNs: []string{"a:b:c"}}}, events)
	})

	t.Run("unknown option is rejected without event", func(t *testing.T) {
		store, _, _ := setupTestStore(t)
		fired := false
		store.OnChange(func(boards.BoardConfigChangeEvent) { fired = true })

		assert.False(t, store.SelectConfigOption(ctx, "a:b:c", "missing", "slow"))
		assert.False(t, fired)
	})

	t.Run("unknown value is rejected and nothing changes", func(t *testing.T) {
		store, _, _ := setupTestStore(t)
		before := store.Data(ctx, "a:b:c")

		assert.False(t, store.SelectConfigOption(ctx, "a:b:c", "speed", "warp"))
		assert.Equal(t, before, store.Data(ctx, "a:b:c"))
	})

	t.Run("platform not installed is rejected", func(t *testing.T) {
		store, _, _ := setupTestStore(t)
		assert.False(t, store.SelectConfigOption(ctx, "x:y:z", "speed", "slow"))
	})
}

func TestSelectConfigOptionsIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store, _, _ := setupTestStore(t)
	before := store.Data(ctx, "a:b:c")

	ok := store.SelectConfigOptions(ctx, "a:b:c", []OptionSelection{
		{Option: "speed", SelectedValue: "slow"},
		{Option: "debug", SelectedValue: "verbose"},
	})
	assert.False(t, ok)
	assert.Equal(t, before, store.Data(ctx, "a:b:c"))

	ok = store.SelectConfigOptions(ctx, "a:b:c", []OptionSelection{
		{Option: "speed", SelectedValue: "slow"},
		{Option: "debug", SelectedValue: "on"},
	})
	assert.True(t, ok)
	assert.Equal(t, "a:b:c:speed=slow,debug=on", store.AppendConfigToFQBN(ctx, "a:b:c"))
}

func TestSelectProgrammer(t *testing.T) {
	ctx := context.Background()

	t.Run("selection round-trips through a restart", func(t *testing.T) {
		backing, mr := testutil.NewRedisStore(t)
		provider := newFakeProvider()
		provider.versions["a:b:c"] = "1.0.0"
		provider.details["a:b:c"] = &boards.BoardDetails{
			ConfigOptions: []boards.ConfigOption{speedOption()},
			Programmers:   []boards.Programmer{edbg, jlink},
		}
		store := NewStore(backing, testutil.TestNamespace, provider, testLogger(&bytes.Buffer{}))

		require.True(t, store.SelectProgrammer(ctx, "a:b:c", jlink))
		record := store.Data(ctx, "a:b:c")
		require.NotNil(t, record.SelectedProgrammer)
		assert.Equal(t, jlink, *record.SelectedProgrammer)

		restarted := NewStore(testutil.ReopenRedisStore(t, mr), testutil.TestNamespace, provider, testLogger(&bytes.Buffer{}))
		assert.Equal(t, record, restarted.Data(ctx, "a:b:c"))
		assert.Equal(t, 1, provider.fetchCount("a:b:c"))

		selected, ok := restarted.SelectedProgrammer(ctx, "a:b:c")
		assert.True(t, ok)
		assert.Equal(t, jlink, selected)
	})

	t.Run("unknown programmer is rejected", func(t *testing.T) {
		store, _, _ := setupTestStore(t)
		before := store.Data(ctx, "a:b:c")
		fired := false
		store.OnChange(func(boards.BoardConfigChangeEvent) { fired = true })

		ok := store.SelectProgrammer(ctx, "a:b:c", boards.Programmer{ID: "p1", Name: "P1", Platform: "missing"})
		assert.False(t, ok)
		assert.False(t, fired)
		assert.Equal(t, before, store.Data(ctx, "a:b:c"))
	})

	t.Run("platform disambiguates duplicate ids", func(t *testing.T) {
		store, provider, _ := setupTestStore(t)
		other := boards.Programmer{ID: "edbg", Name: "EDBG (core)", Platform: "Other"}
		provider.details["a:b:c"].Programmers = []boards.Programmer{edbg, other}

		assert.True(t, store.SelectProgrammer(ctx, "a:b:c", boards.Programmer{ID: "edbg", Platform: "Other"}))
		selected, ok := store.SelectedProgrammer(ctx, "a:b:c")
		require.True(t, ok)
		assert.Equal(t, other, selected)

		assert.False(t, store.SelectProgrammer(ctx, "a:b:c", boards.Programmer{ID: "edbg", Platform: "Nowhere"}))
	})
}

func TestAppendConfigToFQBN(t *testing.T) {
	ctx := context.Background()
	store, _, _ := setupTestStore(t)

	assert.Equal(t, "", store.AppendConfigToFQBN(ctx, ""))
	assert.Equal(t, "a:b:c:speed=fast,debug=off", store.AppendConfigToFQBN(ctx, "a:b:c"))
	assert.Equal(t, "a:b:c:speed=slow", store.AppendConfigToFQBN(ctx, "a:b:c:speed=slow"))
	assert.Equal(t, "x:y:z", store.AppendConfigToFQBN(ctx, "x:y:z"))
}

func TestHandlePlatformInstalled(t *testing.T) {
	ctx := context.Background()
	backing, _ := testutil.NewRedisStore(t)
	provider := newFakeProvider()
	provider.versions["a:b:c"] = "1.0.0"
	provider.versions["a:b:d"] = "1.0.0"
	provider.details["a:b:d"] = &boards.BoardDetails{
		ConfigOptions: []boards.ConfigOption{speedOption()},
		Programmers:   []boards.Programmer{edbg},
	}

	// a:b:c was cached empty while its platform was missing; a:b:d carries a user selection.
	require.NoError(t, backing.Set(ctx, boards.ConfigOptionsKey(testutil.TestNamespace, "1.0.0", "a:b:c"), boards.EmptyRecord()))
	store := NewStore(backing, testutil.TestNamespace, provider, testLogger(&bytes.Buffer{}))
	require.True(t, store.SelectConfigOption(ctx, "a:b:d", "speed", "slow"))
	fetchesBefore := provider.fetchCount("a:b:d")

	provider.details["a:b:c"] = &boards.BoardDetails{
		ConfigOptions: []boards.ConfigOption{debugOption()},
		Programmers:   []boards.Programmer{jlink},
	}
	// a:b:e was never cached.
	provider.details["a:b:e"] = &boards.BoardDetails{
		ConfigOptions: []boards.ConfigOption{speedOption()},
		Programmers:   []boards.Programmer{},
	}

	var events []boards.BoardConfigChangeEvent
	store.OnChange(func(e boards.BoardConfigChangeEvent) { events = append(events, e) })

	store.HandlePlatformInstalled(ctx, boards.PlatformEvent{
		PlatformID: "a:b",
		Version:    "1.0.0",
		Boards: []boards.BoardIdentifier{
			{Name: "C", FQBN: "a:b:c"},
			{Name: "D", FQBN: "a:b:d"},
			{Name: "E", FQBN: "a:b:e"},
		},
	})

	assert.Equal(t, []boards.BoardConfigChangeEvent{{FQBNs: []string{"a:b:c", "a:b:e"}}}, events)
	assert.Equal(t, []boards.ConfigOption{debugOption()}, store.Data(ctx, "a:b:c").ConfigOptions)
	assert.Equal(t, fetchesBefore, provider.fetchCount("a:b:d"))
	assert.Equal(t, 1, provider.fetchCount("a:b:e"))

	value, _ := store.Data(ctx, "a:b:d").ConfigOptions[0].SelectedValue()
	assert.Equal(t, "slow", value.Value)
}

func TestHandlePlatformInstalled_AfterMissingPlatform(t *testing.T) {
	ctx := context.Background()
	backing, _ := testutil.NewRedisStore(t)
	provider := newFakeProvider()
	store := NewStore(backing, testutil.TestNamespace, provider, testLogger(&bytes.Buffer{}))

	assert.True(t, store.Data(ctx, "a:b:c").IsEmpty())
	assert.Equal(t, 0, provider.fetchCount("a:b:c"))

	provider.versions["a:b:c"] = "1.0.0"
	provider.details["a:b:c"] = &boards.BoardDetails{
		ConfigOptions: []boards.ConfigOption{speedOption()},
		Programmers:   []boards.Programmer{edbg},
	}
	var events []boards.BoardConfigChangeEvent
	store.OnChange(func(e boards.BoardConfigChangeEvent) { events = append(events, e) })

	store.HandlePlatformInstalled(ctx, boards.PlatformEvent{
		PlatformID: "a:b",
		Boards:     []boards.BoardIdentifier{{Name: "C", FQBN: "a:b:c"}},
	})

	assert.Equal(t, []boards.BoardConfigChangeEvent{{FQBNs: []string{"a:b:c"}}}, events)
	assert.Equal(t, 1, provider.fetchCount("a:b:c"))
	assert.Equal(t, []boards.ConfigOption{speedOption()}, store.Data(ctx, "a:b:c").ConfigOptions)
	assert.Equal(t, 1, provider.fetchCount("a:b:c"))
}

func TestHandlePlatformUninstalled(t *testing.T) {
	store, _, _ := setupTestStore(t)
	var events []boards.BoardConfigChangeEvent
	store.OnChange(func(e boards.BoardConfigChangeEvent) { events = append(events, e) })

	store.HandlePlatformUninstalled(context.Background(), boards.PlatformEvent{
		PlatformID: "a:b",
		Boards:     []boards.BoardIdentifier{{FQBN: "a:b:c"}, {Name: "no fqbn"}},
	})
	assert.Equal(t, []boards.BoardConfigChangeEvent{{FQBNs: []string{"a:b:c"}}}, events)
}

func TestIsPlatformNotInstalled(t *testing.T) {
	assert.True(t, IsPlatformNotInstalled(ErrPlatformNotInstalled))
	assert.True(t, IsPlatformNotInstalled(fmt.Errorf("wrapped: %w", ErrPlatformNotInstalled)))
	assert.True(t, IsPlatformNotInstalled(errors.New("rpc error: Platform 'a:b' is not installed")))
	assert.False(t, IsPlatformNotInstalled(errors.New("boom")))
	assert.False(t, IsPlatformNotInstalled(nil))
}
