// internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/volleyhq/volley/internal/arena"
	"github.com/volleyhq/volley/internal/history"
	"github.com/volleyhq/volley/internal/models"
)

// Mode identifies how a session is played and populated.
type Mode int

const (
	// ModeSingle is one human against a CPU paddle.
	ModeSingle Mode = iota
	// ModeLocal2P is two humans sharing one connection.
	ModeLocal2P
	// ModeRemote2P is two humans on separate connections.
	ModeRemote2P
	// ModeLocalTournament is a bracket played on one connection.
	ModeLocalTournament
	// ModeRemoteTournament is a bracket across connections, with
	// spectators, a wait window and CPU fill.
	ModeRemoteTournament
)

// ParseMode maps the wire names onto modes.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "single":
		return ModeSingle, nil
	case "local":
		return ModeLocal2P, nil
	case "remote":
		return ModeRemote2P, nil
	case "local_tournament":
		return ModeLocalTournament, nil
	case "remote_tournament":
		return ModeRemoteTournament, nil
	}
	return 0, fmt.Errorf("unknown game mode %q", s)
}

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeLocal2P:
		return "local"
	case ModeRemote2P:
		return "remote"
	case ModeLocalTournament:
		return "local_tournament"
	case ModeRemoteTournament:
		return "remote_tournament"
	}
	return "unknown"
}

// Remote reports whether the mode spans multiple connections, which is what
// makes a session joinable through the directory scan.
func (m Mode) Remote() bool {
	return m == ModeRemote2P || m == ModeRemoteTournament
}

// Tournament reports whether the mode runs a bracket.
func (m Mode) Tournament() bool {
	return m == ModeLocalTournament || m == ModeRemoteTournament
}

// clientCapacity is how many connections a session of this mode seats for
// the given player capacity.
func (m Mode) clientCapacity(playerCapacity int) int {
	switch m {
	case ModeRemote2P:
		return 2
	case ModeRemoteTournament:
		return playerCapacity
	}
	return 1
}

// State is the session lifecycle: WAITING for players, RUNNING matches,
// ENDED.
type State int

const (
	StateWaiting State = iota
	StateRunning
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	}
	return "ended"
}

var (
	ErrSessionFull      = errors.New("session is full")
	ErrSessionStarted   = errors.New("session already started")
	ErrBadCapacity      = errors.New("capacity must be a power of two, at least 2")
	ErrAlreadyInSession = errors.New("client already belongs to a session")
	ErrNoSuchSession    = errors.New("no such session")
)

// LobbyEntry is the public summary of a session, broadcast as lobby_update
// and returned from lobby listings.
type LobbyEntry struct {
	Type       string    `json:"type"`
	SessionID  uuid.UUID `json:"session_id"`
	Mode       string    `json:"mode"`
	State      string    `json:"state"`
	Players    []string  `json:"players"`
	Capacity   int       `json:"capacity"`
	Spectators int       `json:"spectators"`
}

// Session is one playable unit: a one-off match or a whole tournament.
// Implementations share the base struct. Gameplay methods follow the race
// rules: anything arriving in the wrong state is a silent no-op.
type Session interface {
	ID() uuid.UUID
	Mode() Mode
	PlayerCapacity() int
	State() State
	Full() bool
	Empty() bool
	Clients() []uuid.UUID

	// AddClient seats a connection. Local modes may carry the roster of
	// local player names.
	AddClient(c *models.Client, names []string) error
	// MarkReady flags the client as ready; the session starts once full
	// and unanimous.
	MarkReady(clientID uuid.UUID)

	HandleInput(clientID uuid.UUID, side int, dir float64)
	ActivatePowerup(clientID uuid.UUID, side, slot int)
	Pause(clientID uuid.UUID)
	Resume(clientID uuid.UUID)

	// Quit is a deliberate exit: it forfeits the client's current match.
	Quit(clientID uuid.UUID)
	// ClientGone is a disconnect whose grace period expired. Ordinary
	// sessions end; remote tournaments shed the client and play on.
	ClientGone(clientID uuid.UUID)

	// ReplaceClient swaps in a reconnecting client's new connection
	// object. Seating and readiness are untouched.
	ReplaceClient(c *models.Client)

	AddSpectator(c *models.Client) error
	RemoveSpectator(clientID uuid.UUID)

	// End tears the session down regardless of state.
	End()

	Summary() LobbyEntry
}

// base carries the state every session kind shares, and implements
// arena.Sink so matches broadcast straight to the seated connections and
// spectators. Lock discipline: never call into a match while holding mu;
// matches call Broadcast with their own lock held.
type base struct {
	id       uuid.UUID
	mode     Mode
	capacity int
	cfg      *arena.Config
	rec      history.Recorder

	mu           sync.Mutex
	state        State
	clients      map[uuid.UUID]*models.Client
	spectators   map[uuid.UUID]*models.Client
	players      []*arena.Player
	playerClient map[uuid.UUID]uuid.UUID
	ready        map[uuid.UUID]bool

	onEnd   func(Session)
	self    Session
	endOnce sync.Once
	ctx     context.Context
	cancel  context.CancelFunc
}

func newBase(mode Mode, capacity int, cfg *arena.Config, rec history.Recorder) base {
	ctx, cancel := context.WithCancel(context.Background())
	if rec == nil {
		rec = history.Nop{}
	}
	return base{
		id:           uuid.New(),
		mode:         mode,
		capacity:     capacity,
		cfg:          cfg,
		rec:          rec,
		clients:      make(map[uuid.UUID]*models.Client),
		spectators:   make(map[uuid.UUID]*models.Client),
		playerClient: make(map[uuid.UUID]uuid.UUID),
		ready:        make(map[uuid.UUID]bool),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (b *base) ID() uuid.UUID { return b.id }

func (b *base) Mode() Mode { return b.mode }

func (b *base) PlayerCapacity() int { return b.capacity }

func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fullLocked()
}

func (b *base) fullLocked() bool {
	return len(b.clients) >= b.mode.clientCapacity(b.capacity)
}

func (b *base) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients) == 0
}

func (b *base) Clients() []uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uuid.UUID, 0, len(b.clients))
	for id := range b.clients {
		out = append(out, id)
	}
	return out
}

func (b *base) allReadyLocked() bool {
	for id := range b.clients {
		if !b.ready[id] {
			return false
		}
	}
	return len(b.clients) > 0
}

// Broadcast implements arena.Sink over the seated clients and spectators.
func (b *base) Broadcast(ev interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.clients {
		c.Write(ev)
	}
	for _, c := range b.spectators {
		c.Write(ev)
	}
}

// ToPlayer implements arena.Sink; CPU players and players whose connection
// is gone drop the event.
func (b *base) ToPlayer(playerID uuid.UUID, ev interface{}) {
	b.mu.Lock()
	c := b.clients[b.playerClient[playerID]]
	b.mu.Unlock()
	if c != nil {
		c.Write(ev)
	}
}

// ReplaceClient rebinds a seat to the client's fresh connection after a
// reconnect inside the grace period. Unknown clients are ignored.
func (b *base) ReplaceClient(c *models.Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c.ID]; ok {
		b.clients[c.ID] = c
	}
}

func (b *base) AddSpectator(c *models.Client) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateEnded {
		return ErrSessionStarted
	}
	b.spectators[c.ID] = c
	return nil
}

func (b *base) RemoveSpectator(clientID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.spectators, clientID)
}

func (b *base) Summary() LobbyEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.summaryLocked()
}

func (b *base) summaryLocked() LobbyEntry {
	e := LobbyEntry{
		Type:       "lobby_update",
		SessionID:  b.id,
		Mode:       b.mode.String(),
		State:      b.state.String(),
		Capacity:   b.capacity,
		Spectators: len(b.spectators),
	}
	for _, p := range b.players {
		e.Players = append(e.Players, p.Name)
	}
	return e
}

// broadcastLobbyLocked pushes the current summary to everyone attached.
// Assumes mu is held.
func (b *base) broadcastLobbyLocked() {
	e := b.summaryLocked()
	for _, c := range b.clients {
		c.Write(e)
	}
	for _, c := range b.spectators {
		c.Write(e)
	}
}

// endSession flips to ENDED once, cancels running work and notifies the
// owner. The callback runs outside all locks.
func (b *base) endSession() {
	b.endOnce.Do(func() {
		b.mu.Lock()
		b.state = StateEnded
		cb := b.onEnd
		self := b.self
		b.mu.Unlock()
		b.cancel()
		if cb != nil && self != nil {
			cb(self)
		}
	})
}

// recordResult writes the outcome through the recorder off the hot path.
// The winner is identified by its connection identity; CPU winners carry
// the zero id and the recorder treats them accordingly.
func (b *base) recordResult(m *arena.Match, winner *arena.Player) {
	if winner == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.rec.RecordResult(ctx, m.ID, winner.ClientID, m.Score()); err != nil {
			logRecorderErr("record result", m.ID, err)
		}
	}()
}
