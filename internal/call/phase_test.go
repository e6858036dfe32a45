package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easecampusghana/extraclasses-live/internal/models"
)

type stubDirectory struct {
	info *RoomInfo
	err  error
}

func (d *stubDirectory) Lookup(_ context.Context, _ string) (*RoomInfo, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.info, nil
}

type stubStore struct {
	mu         sync.Mutex
	readyCalls int
	endCalls   int
	readyErr   error
	endErr     error
}

func (s *stubStore) MarkReady(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readyCalls++
	return s.readyErr
}

func (s *stubStore) End(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endCalls++
	return s.endErr
}

func joinableRoom() *RoomInfo {
	return &RoomInfo{
		RoomCode:  "ABCD234567",
		Role:      models.RoleStudent,
		Status:    models.VideoSessionStatusWaiting,
		Subject:   "Core Mathematics",
		StartTime: time.Now(),
		EndTime:   time.Now().Add(time.Hour),
		CanJoin:   true,
	}
}

func TestMachineLoadReachesWaitingRoom(t *testing.T) {
	m := NewMachine(&stubDirectory{info: joinableRoom()}, &stubStore{}, nil)

	phase := m.Load(context.Background(), "ABCD234567")

	assert.Equal(t, PhaseWaitingRoom, phase)
	require.NotNil(t, m.Room())
	assert.Equal(t, models.RoleStudent, m.Room().Role)
}

func TestMachineLoadUnknownRoomIsTerminalError(t *testing.T) {
	m := NewMachine(&stubDirectory{err: ErrRoomNotFound}, &stubStore{}, nil)

	phase := m.Load(context.Background(), "NOSUCHROOM")

	assert.Equal(t, PhaseError, phase)
	assert.Contains(t, m.Failure(), "Unable to Join")

	// Terminal: nothing moves the machine out of error.
	assert.Error(t, m.StartDeviceTest())
	assert.Error(t, m.ConfirmReady(context.Background()))
	assert.Equal(t, PhaseError, m.Phase())
}

func TestMachineLoadEndedSessionLandsInEnded(t *testing.T) {
	info := joinableRoom()
	info.Status = models.VideoSessionStatusEnded
	info.CanJoin = false
	store := &stubStore{}
	m := NewMachine(&stubDirectory{info: info}, store, nil)

	phase := m.Load(context.Background(), info.RoomCode)

	assert.Equal(t, PhaseEnded, phase)
	assert.Zero(t, store.readyCalls)
	assert.Zero(t, store.endCalls)
}

func TestMachineLoadOutsideJoinWindow(t *testing.T) {
	info := joinableRoom()
	info.CanJoin = false
	info.Message = "This session starts at 4:00 PM."
	m := NewMachine(&stubDirectory{info: info}, &stubStore{}, nil)

	phase := m.Load(context.Background(), info.RoomCode)

	assert.Equal(t, PhaseError, phase)
	assert.Equal(t, info.Message, m.Failure())
}

func TestMachineSecondLoadIsNoOp(t *testing.T) {
	m := NewMachine(&stubDirectory{info: joinableRoom()}, &stubStore{}, nil)

	require.Equal(t, PhaseWaitingRoom, m.Load(context.Background(), "ABCD234567"))
	assert.Equal(t, PhaseWaitingRoom, m.Load(context.Background(), "ABCD234567"))
}

func TestMachineConfirmReadyEntersInCall(t *testing.T) {
	store := &stubStore{}
	m := NewMachine(&stubDirectory{info: joinableRoom()}, store, nil)
	m.Load(context.Background(), "ABCD234567")

	require.NoError(t, m.ConfirmReady(context.Background()))

	assert.Equal(t, PhaseInCall, m.Phase())
	assert.Equal(t, 1, store.readyCalls)
}

func TestMachineConfirmReadyFromDeviceTest(t *testing.T) {
	store := &stubStore{}
	m := NewMachine(&stubDirectory{info: joinableRoom()}, store, nil)
	m.Load(context.Background(), "ABCD234567")
	require.NoError(t, m.StartDeviceTest())

	require.NoError(t, m.ConfirmReady(context.Background()))
	assert.Equal(t, PhaseInCall, m.Phase())
}

func TestMachineDoubleConfirmReadyPersistsOnce(t *testing.T) {
	store := &stubStore{}
	m := NewMachine(&stubDirectory{info: joinableRoom()}, store, nil)
	m.Load(context.Background(), "ABCD234567")

	require.NoError(t, m.ConfirmReady(context.Background()))
	require.NoError(t, m.ConfirmReady(context.Background()))

	assert.Equal(t, 1, store.readyCalls)
	assert.Equal(t, PhaseInCall, m.Phase())
}

func TestMachineConfirmReadyBeforeLoadRejected(t *testing.T) {
	store := &stubStore{}
	m := NewMachine(&stubDirectory{info: joinableRoom()}, store, nil)

	err := m.ConfirmReady(context.Background())

	assert.Error(t, err)
	assert.Zero(t, store.readyCalls)
	assert.Equal(t, PhaseLoading, m.Phase())
}

func TestMachineConfirmReadyStoreFailure(t *testing.T) {
	store := &stubStore{readyErr: errors.New("db down")}
	m := NewMachine(&stubDirectory{info: joinableRoom()}, store, nil)
	m.Load(context.Background(), "ABCD234567")

	err := m.ConfirmReady(context.Background())

	assert.Error(t, err)
	assert.Equal(t, PhaseError, m.Phase())
}

func TestMachineEndIsIdempotent(t *testing.T) {
	store := &stubStore{}
	m := NewMachine(&stubDirectory{info: joinableRoom()}, store, nil)
	m.Load(context.Background(), "ABCD234567")
	require.NoError(t, m.ConfirmReady(context.Background()))

	require.NoError(t, m.End(context.Background()))
	require.NoError(t, m.End(context.Background()))

	assert.Equal(t, 1, store.endCalls)
	assert.Equal(t, PhaseEnded, m.Phase())
}

func TestMachineEndedIsSticky(t *testing.T) {
	m := NewMachine(&stubDirectory{info: joinableRoom()}, &stubStore{}, nil)
	m.Load(context.Background(), "ABCD234567")
	require.NoError(t, m.ConfirmReady(context.Background()))
	require.NoError(t, m.End(context.Background()))

	m.Fail("late failure")

	assert.Equal(t, PhaseEnded, m.Phase())
	assert.Empty(t, m.Failure())
}

func TestMachineOnChangeObservesEveryTransition(t *testing.T) {
	var seen []Phase
	var mu sync.Mutex
	m := NewMachine(&stubDirectory{info: joinableRoom()}, &stubStore{}, func(p Phase) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	})

	m.Load(context.Background(), "ABCD234567")
	require.NoError(t, m.StartDeviceTest())
	require.NoError(t, m.ConfirmReady(context.Background()))
	require.NoError(t, m.End(context.Background()))

	assert.Equal(t, []Phase{PhaseWaitingRoom, PhaseDeviceTest, PhaseInCall, PhaseEnded}, seen)
}

func TestMachineDeviceTestRetry(t *testing.T) {
	m := NewMachine(&stubDirectory{info: joinableRoom()}, &stubStore{}, nil)
	m.Load(context.Background(), "ABCD234567")

	require.NoError(t, m.StartDeviceTest())
	require.NoError(t, m.RetryDeviceTest())
	assert.Equal(t, PhaseDeviceTest, m.Phase())
}
