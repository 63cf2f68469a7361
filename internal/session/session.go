package session

import (
	"sync"

	"github.com/rawblock/pacmatch-engine/internal/engine"
	"github.com/rawblock/pacmatch-engine/pkg/models"
)

// CreateParams is the argument record for Manager.CreateSession.
type CreateParams struct {
	ID           string
	Kind         models.SessionKind
	Variant      string
	Seed         int64
	Tier         engine.Tier
	Participants []string
}

// session is one live (or stopped-but-not-removed) engine plus the
// bookkeeping the manager needs to drive and fan it out. Exactly one
// goroutine — this session's own driver — calls tick; all external
// access to eng goes through the manager's public methods, which only
// ever touch the input slot and read immutable snapshots.
type session struct {
	id           string
	kind         models.SessionKind
	participants []string
	room         string

	eng *engine.Engine

	inputMu sync.Mutex
	input   models.Direction

	snapMu      sync.RWMutex
	lastSnap    models.Snapshot
	hasSnapshot bool

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func newSession(p CreateParams, eng *engine.Engine) *session {
	return &session{
		id:           p.ID,
		kind:         p.Kind,
		participants: p.Participants,
		room:         string(p.Kind) + ":" + p.ID,
		eng:          eng,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// queueInput overwrites the single input slot (spec §4.3: "latest-wins,
// single-slot").
func (s *session) queueInput(dir models.Direction) {
	s.inputMu.Lock()
	s.input = dir
	s.inputMu.Unlock()
}

func (s *session) drainInput() models.Direction {
	s.inputMu.Lock()
	dir := s.input
	s.input = models.DirNone
	s.inputMu.Unlock()
	return dir
}

func (s *session) requestStop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *session) snapshot() (models.Snapshot, bool) {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.lastSnap, s.hasSnapshot
}

func (s *session) setSnapshot(snap models.Snapshot) {
	s.snapMu.Lock()
	s.lastSnap = snap
	s.hasSnapshot = true
	s.snapMu.Unlock()
}
