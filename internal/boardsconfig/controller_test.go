package boardsconfig

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/boardctl/internal/boardlist"
	"github.com/dyluth/boardctl/internal/persistence"
	"github.com/dyluth/boardctl/internal/testutil"
	"github.com/dyluth/boardctl/pkg/boards"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	uno     = boards.BoardIdentifier{Name: "Arduino Uno", FQBN: "arduino:avr:uno"}
	mkr1000 = boards.BoardIdentifier{Name: "Arduino MKR1000", FQBN: "arduino:samd:mkr1000"}
	nano    = boards.BoardIdentifier{Name: "Arduino Nano", FQBN: "arduino:avr:nano"}

	unoSerialPort     = boards.PortIdentifier{Protocol: "serial", Address: "/dev/ttyACM0"}
	mkr1000SerialPort = boards.PortIdentifier{Protocol: "serial", Address: "/dev/ttyACM1"}
)

type recorder struct {
	events []boards.BoardsConfigChangeEvent
	lists  []boardlist.BoardList
}

func setupController(t *testing.T, svc persistence.Service) (*Controller, *boardlist.Matcher, *recorder) {
	t.Helper()

	matcher := boardlist.NewMatcher(svc, testutil.TestNamespace, nil)
	matcher.UpdateDetectedPorts(boards.DetectedPorts{
		unoSerialPort.Key(): {
			Port:   boards.Port{Protocol: "serial", Address: unoSerialPort.Address},
			Boards: []boards.BoardIdentifier{uno},
		},
		mkr1000SerialPort.Key(): {
			Port:   boards.Port{Protocol: "serial", Address: mkr1000SerialPort.Address},
			Boards: []boards.BoardIdentifier{mkr1000},
		},
	})

	c := NewController(matcher, svc, testutil.TestNamespace, nil)
	t.Cleanup(c.Close)

	rec := &recorder{}
	c.OnChange(func(e boards.BoardsConfigChangeEvent) { rec.events = append(rec.events, e) })
	c.OnBoardListChange(func(l boardlist.BoardList) { rec.lists = append(rec.lists, l) })
	return c, matcher, rec
}

func newStore(t *testing.T) persistence.Service {
	store, _ := testutil.NewRedisStore(t)
	return store
}

func TestUpdateConfig_CombinedEvent(t *testing.T) {
	ctx := context.Background()
	c, _, rec := setupController(t, newStore(t))

	require.True(t, c.UpdateConfig(ctx, Config(boards.BoardsConfig{SelectedBoard: &uno, SelectedPort: &unoSerialPort})))
	rec.events = nil

	changed := c.UpdateConfig(ctx, Config(boards.BoardsConfig{SelectedBoard: &mkr1000, SelectedPort: &mkr1000SerialPort}))
	require.True(t, changed)
	require.Len(t, rec.events, 1)
	assert.Equal(t, boards.BoardsConfigChangeEvent{
		BoardChanged:          true,
		PreviousSelectedBoard: &uno,
		SelectedBoard:         &mkr1000,
		PortChanged:           true,
		PreviousSelectedPort:  &unoSerialPort,
		SelectedPort:          &mkr1000SerialPort,
	}, rec.events[0])
}

func TestUpdateConfig_Idempotent(t *testing.T) {
	ctx := context.Background()
	c, _, rec := setupController(t, newStore(t))

	current := boards.BoardsConfig{SelectedBoard: &uno, SelectedPort: &unoSerialPort}
	require.True(t, c.UpdateConfig(ctx, Config(current)))
	rec.events = nil

	assert.False(t, c.UpdateConfig(ctx, Config(current)))
	assert.False(t, c.UpdateConfig(ctx, Board(uno)))
	assert.False(t, c.UpdateConfig(ctx, Port(unoSerialPort)))
	assert.False(t, c.UpdateConfig(ctx, Update{}))
	assert.Empty(t, rec.events)
}

func TestUpdateConfig_SingleHalf(t *testing.T) {
	ctx := context.Background()
	c, _, rec := setupController(t, newStore(t))
	require.True(t, c.UpdateConfig(ctx, Config(boards.BoardsConfig{SelectedBoard: &uno, SelectedPort: &unoSerialPort})))
	rec.events = nil

	t.Run("board only", func(t *testing.T) {
		require.True(t, c.UpdateConfig(ctx, Board(nano)))
		require.Len(t, rec.events, 1)
		evt := rec.events[0]
		assert.True(t, evt.BoardChanged)
		assert.False(t, evt.PortChanged)
		assert.Nil(t, evt.SelectedPort)
		assert.Equal(t, &unoSerialPort, c.Config().SelectedPort)
		assert.Equal(t, &nano, c.Config().SelectedBoard)
	})

	t.Run("port only", func(t *testing.T) {
		rec.events = nil
		require.True(t, c.UpdateConfig(ctx, Port(mkr1000SerialPort)))
		require.Len(t, rec.events, 1)
		evt := rec.events[0]
		assert.False(t, evt.BoardChanged)
		assert.True(t, evt.PortChanged)
		assert.Equal(t, &unoSerialPort, evt.PreviousSelectedPort)
		assert.Equal(t, &nano, c.Config().SelectedBoard)
	})

	t.Run("clear board", func(t *testing.T) {
		rec.events = nil
		require.True(t, c.UpdateConfig(ctx, Update{Board: boardlist.ClearBoard()}))
		require.Len(t, rec.events, 1)
		assert.Nil(t, c.Config().SelectedBoard)
		assert.Equal(t, &mkr1000SerialPort, c.Config().SelectedPort)
	})
}

func TestUpdateConfig_History(t *testing.T) {
	ctx := context.Background()
	c, matcher, _ := setupController(t, newStore(t))

	require.True(t, c.UpdateConfig(ctx, Config(boards.BoardsConfig{SelectedBoard: &nano, SelectedPort: &unoSerialPort})))
	assert.Equal(t, boardlist.History{unoSerialPort.Key(): nano}, matcher.History())

	list := c.BoardList()
	require.GreaterOrEqual(t, list.SelectedIndex, 0)
	selected, _ := list.Selected()
	assert.True(t, selected.Inferred)

	require.True(t, c.UpdateConfig(ctx, Board(uno)))
	assert.Empty(t, matcher.History())
}

func TestController_DetectedPortsRecomputesList(t *testing.T) {
	ctx := context.Background()
	c, matcher, rec := setupController(t, newStore(t))
	require.True(t, c.UpdateConfig(ctx, Config(boards.BoardsConfig{SelectedBoard: &mkr1000, SelectedPort: &mkr1000SerialPort})))
	rec.lists = nil

	matcher.UpdateDetectedPorts(boards.DetectedPorts{
		unoSerialPort.Key(): {
			Port:   boards.Port{Protocol: "serial", Address: unoSerialPort.Address},
			Boards: []boards.BoardIdentifier{uno},
		},
	})

	require.Len(t, rec.lists, 1)
	assert.Equal(t, -1, rec.lists[0].SelectedIndex)
	assert.Len(t, rec.lists[0].Items, 1)
	assert.Equal(t, &mkr1000, c.Config().SelectedBoard)
}

func TestController_RestoreAfterRestart(t *testing.T) {
	ctx := context.Background()
	store, mr := testutil.NewRedisStore(t)
	c, _, _ := setupController(t, store)
	require.True(t, c.UpdateConfig(ctx, Config(boards.BoardsConfig{SelectedBoard: &nano, SelectedPort: &unoSerialPort})))

	restarted, matcher, rec := setupController(t, testutil.ReopenRedisStore(t, mr))
	restarted.Restore(ctx)

	assert.Equal(t, boards.BoardsConfig{SelectedBoard: &nano, SelectedPort: &unoSerialPort}, restarted.Config())
	assert.Equal(t, boardlist.History{unoSerialPort.Key(): nano}, matcher.History())
	assert.Empty(t, rec.events)
}

func TestUpdateConfig_ConcurrentUpdatesFollowSwapOrder(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c, _, _ := setupController(t, store)

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var selected []string
	c.OnChange(func(e boards.BoardsConfigChangeEvent) {
		if e.SelectedBoard != nil && e.SelectedBoard.FQBN == mkr1000.FQBN {
			close(entered)
			<-release
		}
		mu.Lock()
		selected = append(selected, e.SelectedBoard.FQBN)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.UpdateConfig(ctx, Board(mkr1000))
	}()
	<-entered

	nanoDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(nanoDone)
		c.UpdateConfig(ctx, Board(nano))
	}()

	finished := func() bool {
		select {
		case <-nanoDone:
			return true
		default:
			return false
		}
	}
	assert.Never(t, finished, 50*time.Millisecond, 5*time.Millisecond, "second update must wait for the first to finish")
	close(release)
	wg.Wait()

	assert.Equal(t, []string{mkr1000.FQBN, nano.FQBN}, selected)
	assert.Equal(t, &nano, c.Config().SelectedBoard)

	var persisted boards.BoardsConfig
	found, err := store.Get(ctx, boards.BoardsConfigKey(testutil.TestNamespace), &persisted)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, &nano, persisted.SelectedBoard)
}

func TestController_RestoreDropsMalformedBoard(t *testing.T) {
	ctx := context.Background()
	store, mr := testutil.NewRedisStore(t)
	require.NoError(t, store.Set(ctx, boards.BoardsConfigKey(testutil.TestNamespace), boards.BoardsConfig{
		SelectedBoard: &boards.BoardIdentifier{Name: "Mystery", FQBN: "foo"},
		SelectedPort:  &unoSerialPort,
	}))

	restarted, _, rec := setupController(t, testutil.ReopenRedisStore(t, mr))
	restarted.Restore(ctx)

	assert.Equal(t, boards.BoardsConfig{SelectedPort: &unoSerialPort}, restarted.Config())
	assert.Empty(t, rec.events)
}
