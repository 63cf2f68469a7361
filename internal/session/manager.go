// Package session hosts many concurrent game engines, drives them at
// 60Hz, and fans out full-sync/delta frames to spectator rooms (spec
// §4.3).
package session

import (
	"fmt"
	"log"
	"sync"

	"github.com/rawblock/pacmatch-engine/internal/bus"
	"github.com/rawblock/pacmatch-engine/internal/engine"
	"github.com/rawblock/pacmatch-engine/pkg/models"
)

// FrameCallback receives every emitted frame payload alongside the
// room it was published to, mirroring what went out on the bus.
type FrameCallback func(sessionID string, room string, isFullSync bool, full *models.Snapshot, d *models.DeltaFrame)

// RoundChangeCallback fires when snapshot.round increments.
type RoundChangeCallback func(sessionID string, round int)

// GameOverCallback fires once, when the engine flips to game-over.
type GameOverCallback func(sessionID string, reason string, final models.Snapshot)

// Manager owns every live session, guarded by a single RWMutex sharded
// only in spirit — the map itself is small enough that one lock
// suffices, while each session's own driver goroutine is the sole
// writer of its engine (spec §9: "one owning container guarded by a
// reader/writer lock").
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session

	bus bus.MessageBus

	cbMu           sync.RWMutex
	onFrame        FrameCallback
	onRoundChange  RoundChangeCallback
	onGameOver     GameOverCallback
}

// New constructs a Manager publishing through b.
func New(b bus.MessageBus) *Manager {
	if b == nil {
		b = bus.NopBus{}
	}
	return &Manager{sessions: make(map[string]*session), bus: b}
}

// CreateSession constructs the engine for p and registers it, stopped,
// under p.ID. Call StartSession to begin driving it.
func (m *Manager) CreateSession(p CreateParams) error {
	if p.ID == "" {
		return fmt.Errorf("session: %w: empty id", ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[p.ID]; exists {
		return fmt.Errorf("session %s: %w", p.ID, ErrAlreadyExists)
	}
	eng, err := engine.New(p.Variant, p.Seed, p.Tier)
	if err != nil {
		return fmt.Errorf("session: %w: %v", ErrInvalidArgument, err)
	}
	m.sessions[p.ID] = newSession(p, eng)
	return nil
}

// StartSession begins driving id's engine at 60Hz in its own goroutine.
func (m *Manager) StartSession(id string) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	go m.drive(s)
	return nil
}

// StopSession cancels id's driver without removing its last snapshot,
// so FullSync still answers for it until RemoveSession is called.
func (m *Manager) StopSession(id string) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	s.requestStop()
	return nil
}

// RemoveSession stops (if running) and forgets id entirely.
func (m *Manager) RemoveSession(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	delete(m.sessions, id)
	m.mu.Unlock()
	s.requestStop()
	return nil
}

// QueueInput overwrites id's single pending-input slot. Unknown
// session ids are logged and ignored (spec §7: session_not_found is
// "ignored with log").
func (m *Manager) QueueInput(id string, participant string, dir models.Direction) {
	s, err := m.lookup(id)
	if err != nil {
		log.Printf("session: queueInput for unknown session %s: %v", id, err)
		return
	}
	s.queueInput(dir)
}

// FullSync returns the most recent snapshot for id, for a newly
// joining spectator.
func (m *Manager) FullSync(id string) (models.Snapshot, bool) {
	s, err := m.lookup(id)
	if err != nil {
		return models.Snapshot{}, false
	}
	return s.snapshot()
}

// ActiveSessions lists every registered session id, running or stopped.
func (m *Manager) ActiveSessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) SetOnFrame(cb FrameCallback) {
	m.cbMu.Lock()
	m.onFrame = cb
	m.cbMu.Unlock()
}

func (m *Manager) SetOnRoundChange(cb RoundChangeCallback) {
	m.cbMu.Lock()
	m.onRoundChange = cb
	m.cbMu.Unlock()
}

func (m *Manager) SetOnGameOver(cb GameOverCallback) {
	m.cbMu.Lock()
	m.onGameOver = cb
	m.cbMu.Unlock()
}

func (m *Manager) lookup(id string) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return s, nil
}

// tickOnce drives exactly one tick of s: drain input, tick the engine,
// compute and publish the frame, and fire lifecycle callbacks. It
// returns false if the session's driver should exit (engine fault or
// natural game over).
func (m *Manager) tickOnce(s *session) (keepRunning bool) {
	input := s.drainInput()

	snap, faultReason := m.safeTick(s, input)
	if faultReason != "" {
		m.emitGameOver(s, faultReason, snap)
		m.RemoveSession(s.id)
		return false
	}

	prev, hadPrev := s.snapshot()
	s.setSnapshot(snap)

	if !hadPrev {
		m.publishFullSync(s, snap)
	} else {
		d := delta(prev, snap)
		m.publishDelta(s, d)
		if snap.Round != prev.Round {
			m.fireRoundChange(s.id, snap.Round)
		}
	}

	if snap.GameOver {
		m.fireGameOver(s.id, "", snap)
		return false
	}
	return true
}

// safeTick calls the engine's Tick, converting any panic inside it
// into the engine_fault kind (spec §7: "errors within a tick are
// caught and converted to engine_fault").
func (m *Manager) safeTick(s *session, input models.Direction) (snap models.Snapshot, faultReason string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session %s: engine panic recovered: %v", s.id, r)
			faultReason = "engine_fault"
		}
	}()
	var err error
	snap, err = s.eng.Tick(input)
	if err != nil {
		log.Printf("session %s: engine error: %v", s.id, err)
		return snap, "engine_fault"
	}
	return snap, ""
}

func (m *Manager) publishFullSync(s *session, snap models.Snapshot) {
	m.bus.Broadcast(s.room, "frame", snap)
	m.callOnFrame(s.id, s.room, true, &snap, nil)
}

func (m *Manager) publishDelta(s *session, d models.DeltaFrame) {
	m.bus.Broadcast(s.room, "frame", d)
	m.callOnFrame(s.id, s.room, false, nil, &d)
}

func (m *Manager) callOnFrame(id, room string, full bool, snap *models.Snapshot, d *models.DeltaFrame) {
	m.cbMu.RLock()
	cb := m.onFrame
	m.cbMu.RUnlock()
	if cb == nil {
		return
	}
	m.shield(func() { cb(id, room, full, snap, d) })
}

func (m *Manager) fireRoundChange(id string, round int) {
	m.cbMu.RLock()
	cb := m.onRoundChange
	m.cbMu.RUnlock()
	if cb == nil {
		return
	}
	m.shield(func() { cb(id, round) })
}

func (m *Manager) fireGameOver(id, reason string, snap models.Snapshot) {
	m.cbMu.RLock()
	cb := m.onGameOver
	m.cbMu.RUnlock()
	if cb == nil {
		return
	}
	m.shield(func() { cb(id, reason, snap) })
}

func (m *Manager) emitGameOver(s *session, reason string, snap models.Snapshot) {
	snap.GameOver = true
	m.bus.Broadcast(s.room, "match_result", map[string]any{
		"sessionId": s.id,
		"reason":    reason,
	})
	m.fireGameOver(s.id, reason, snap)
}

// shield runs fn, logging and swallowing any panic so a misbehaving
// caller callback can never corrupt the tick loop (spec §7).
func (m *Manager) shield(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session: callback panic recovered: %v", r)
		}
	}()
	fn()
}
