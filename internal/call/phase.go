package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/easecampusghana/extraclasses-live/internal/models"
)

// Phase is the client-local step of the call lifecycle. Distinct from the
// persisted session status: two participants can be in different phases of
// the same session.
type Phase string

const (
	PhaseLoading     Phase = "loading"
	PhaseWaitingRoom Phase = "waiting-room"
	PhaseDeviceTest  Phase = "device-test"
	PhaseInCall      Phase = "in-call"
	PhaseEnded       Phase = "ended"
	PhaseError       Phase = "error"
)

// Terminal reports whether a phase is final for this room-code visit.
// Leaving ended or error requires a fresh lookup (reload).
func (p Phase) Terminal() bool { return p == PhaseEnded || p == PhaseError }

// RoomInfo is what the session directory resolves a room code to: the
// session identity, the caller's role (computed once, immutable from here)
// and the counterparty's display identity.
type RoomInfo struct {
	SessionID        uuid.UUID
	RoomCode         string
	Role             models.Role
	Status           models.VideoSessionStatus
	Subject          string
	StartTime        time.Time
	EndTime          time.Time
	OtherPartyName   string
	OtherPartyJoined bool
	CanJoin          bool
	Message          string
}

// Directory is the session-directory lookup port.
type Directory interface {
	Lookup(ctx context.Context, roomCode string) (*RoomInfo, error)
}

// SessionStore is the persistence port for the two phase transitions that
// mutate the session row. Both operations are idempotent server-side.
type SessionStore interface {
	MarkReady(ctx context.Context, roomCode string) error
	End(ctx context.Context, roomCode string) error
}

var (
	// ErrRoomNotFound is what Directory implementations return for an
	// unknown room code.
	ErrRoomNotFound = errors.New("room not found")

	errBadTransition = errors.New("invalid phase transition")
)

// Machine drives one participant through loading -> waiting-room ->
// device-test -> in-call -> ended, with error reachable from anywhere.
// All persisted mutations flow through here; the shell never writes
// session state directly.
type Machine struct {
	directory Directory
	store     SessionStore

	mu        sync.Mutex
	phase     Phase
	room      *RoomInfo
	failure   string
	readyDone bool

	onChange func(Phase)
}

// NewMachine creates a phase machine in the loading phase. onChange fires
// on every transition and may be nil.
func NewMachine(directory Directory, store SessionStore, onChange func(Phase)) *Machine {
	return &Machine{
		directory: directory,
		store:     store,
		phase:     PhaseLoading,
		onChange:  onChange,
	}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Room returns the resolved room info, nil before a successful Load.
func (m *Machine) Room() *RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.room
}

// Failure returns the user-facing reason when the phase is error.
func (m *Machine) Failure() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure
}

// Load resolves the room code and leaves the machine in waiting-room,
// ended or error. Only valid from loading; a second call is a no-op so a
// re-render can never bounce the machine back to loading.
func (m *Machine) Load(ctx context.Context, roomCode string) Phase {
	m.mu.Lock()
	if m.phase != PhaseLoading {
		phase := m.phase
		m.mu.Unlock()
		return phase
	}
	m.mu.Unlock()

	info, err := m.directory.Lookup(ctx, roomCode)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return m.fail("Unable to Join: this room does not exist or you are not a participant.")
		}
		return m.fail(fmt.Sprintf("Unable to Join: %v", err))
	}

	m.mu.Lock()
	m.room = info
	m.mu.Unlock()

	if info.Status == models.VideoSessionStatusEnded {
		return m.transition(PhaseEnded)
	}
	if !info.CanJoin {
		return m.fail(info.Message)
	}
	return m.transition(PhaseWaitingRoom)
}

// StartDeviceTest moves from waiting-room into the device check. Optional;
// ConfirmReady accepts either origin.
func (m *Machine) StartDeviceTest() error {
	return m.guardedTransition(PhaseDeviceTest, PhaseWaitingRoom)
}

// RetryDeviceTest is a no-op transition kept for the waiting-room retry
// affordance: a failed device acquisition may be retried without reloading.
func (m *Machine) RetryDeviceTest() error {
	return m.guardedTransition(PhaseDeviceTest, PhaseDeviceTest, PhaseWaitingRoom)
}

// ConfirmReady is the join transition: device check passed, the user
// confirmed. Persists the monotonic join flag and the waiting -> active
// promotion, then enters in-call. Calling it again while already in-call
// is a no-op; a duplicate ready click never rewrites started_at.
func (m *Machine) ConfirmReady(ctx context.Context) error {
	m.mu.Lock()
	if m.phase == PhaseInCall && m.readyDone {
		m.mu.Unlock()
		return nil
	}
	if m.phase != PhaseWaitingRoom && m.phase != PhaseDeviceTest {
		phase := m.phase
		m.mu.Unlock()
		return fmt.Errorf("%w: ready from %s", errBadTransition, phase)
	}
	room := m.room
	m.mu.Unlock()

	if err := m.store.MarkReady(ctx, room.RoomCode); err != nil {
		m.fail("Unable to Join: could not register your join. Please try again.")
		return err
	}

	m.mu.Lock()
	m.readyDone = true
	m.mu.Unlock()
	m.transition(PhaseInCall)
	return nil
}

// End is the hang-up transition: persists ended/ended_at (first writer
// wins server-side) and parks the machine in ended for good.
func (m *Machine) End(ctx context.Context) error {
	m.mu.Lock()
	if m.phase.Terminal() {
		m.mu.Unlock()
		return nil
	}
	room := m.room
	m.mu.Unlock()

	if room != nil {
		if err := m.store.End(ctx, room.RoomCode); err != nil {
			// The call is over for this user either way; report but land
			// in ended so the UI doesn't strand them mid-call.
			m.transition(PhaseEnded)
			return err
		}
	}
	m.transition(PhaseEnded)
	return nil
}

// EndedRemotely parks the machine in ended without writing anything: the
// counterparty already persisted the end transition. No-op once terminal.
func (m *Machine) EndedRemotely() {
	m.transition(PhaseEnded)
}

// Fail routes any unrecoverable error into the terminal error phase with a
// user-visible reason. No-op once terminal.
func (m *Machine) Fail(reason string) {
	m.fail(reason)
}

func (m *Machine) fail(reason string) Phase {
	m.mu.Lock()
	if m.phase.Terminal() {
		phase := m.phase
		m.mu.Unlock()
		return phase
	}
	m.failure = reason
	m.mu.Unlock()
	return m.transition(PhaseError)
}

func (m *Machine) transition(next Phase) Phase {
	m.mu.Lock()
	if m.phase.Terminal() {
		next = m.phase
		m.mu.Unlock()
		return next
	}
	m.phase = next
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(next)
	}
	return next
}

func (m *Machine) guardedTransition(next Phase, allowedFrom ...Phase) error {
	m.mu.Lock()
	current := m.phase
	m.mu.Unlock()

	for _, from := range allowedFrom {
		if current == from {
			m.transition(next)
			return nil
		}
	}
	return fmt.Errorf("%w: %s from %s", errBadTransition, next, current)
}
