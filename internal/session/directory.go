// internal/session/directory.go
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/volleyhq/volley/internal/arena"
	"github.com/volleyhq/volley/internal/history"
	"github.com/volleyhq/volley/internal/models"
)

const (
	defaultGracePeriod = 10 * time.Second
	defaultWaitWindow  = 30 * time.Second
	defaultTournament  = 4
)

// Directory owns every live session and the client-to-session binding. It
// is handed to the protocol layer as a value, never reached through a
// package global, so tests can run directories side by side. The mutex is
// held across the whole find-or-create scan, which is what makes two
// concurrent joins of the same mode land in one session instead of two.
type Directory struct {
	cfg *arena.Config
	rec history.Recorder

	grace        time.Duration
	waitWindow   time.Duration
	notifyLogout func(clientID uuid.UUID)

	mu          sync.Mutex
	sessions    map[uuid.UUID]Session
	byClient    map[uuid.UUID]Session
	graceTimers map[uuid.UUID]*time.Timer
	// connCount tracks live connections per client id, so a disconnect
	// notice that arrives after the client already reconnected does not
	// arm a grace timer against the new connection.
	connCount map[uuid.UUID]int
}

// Option tweaks a Directory at construction.
type Option func(*Directory)

// WithGracePeriod sets how long a disconnected client may return before it
// is dropped from its session.
func WithGracePeriod(d time.Duration) Option {
	return func(dir *Directory) { dir.grace = d }
}

// WithWaitWindow sets how long a remote tournament waits for joiners before
// starting with CPU fill.
func WithWaitWindow(d time.Duration) Option {
	return func(dir *Directory) { dir.waitWindow = d }
}

// WithLogoutNotifier registers the auth-side callback fired when a grace
// period expires.
func WithLogoutNotifier(fn func(clientID uuid.UUID)) Option {
	return func(dir *Directory) { dir.notifyLogout = fn }
}

// NewDirectory builds an empty directory over the given ruleset and
// recorder.
func NewDirectory(cfg *arena.Config, rec history.Recorder, opts ...Option) *Directory {
	if cfg == nil {
		cfg = arena.DefaultConfig()
	}
	if rec == nil {
		rec = history.Nop{}
	}
	d := &Directory{
		cfg:         cfg,
		rec:         rec,
		grace:       defaultGracePeriod,
		waitWindow:  defaultWaitWindow,
		sessions:    make(map[uuid.UUID]Session),
		byClient:    make(map[uuid.UUID]Session),
		graceTimers: make(map[uuid.UUID]*time.Timer),
		connCount:   make(map[uuid.UUID]int),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Join seats the client in a session of the given mode: remote modes reuse
// a waiting, non-full session of the same shape when one exists, local
// modes always get a fresh one. capacity only matters for tournaments and
// defaults to 4. The scan and the insert happen under one lock, so the
// same session is never created twice for two racing joiners.
func (d *Directory) Join(c *models.Client, mode Mode, capacity int, names []string) (Session, error) {
	if capacity <= 0 {
		capacity = defaultTournament
	}
	if !mode.Tournament() {
		capacity = 2
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byClient[c.ID]; ok {
		return nil, ErrAlreadyInSession
	}

	var target Session
	if mode.Remote() {
		target = d.findJoinableLocked(mode, capacity)
	}
	created := false
	if target == nil {
		s, err := d.newSessionLocked(mode, capacity)
		if err != nil {
			return nil, err
		}
		target = s
		created = true
	}

	if err := target.AddClient(c, names); err != nil {
		return nil, err
	}
	d.byClient[c.ID] = target
	if created {
		d.sessions[target.ID()] = target
		log.Infof("directory: created %s session %s for client %s", mode, target.ID(), c.ID)
	} else {
		log.Infof("directory: client %s joined existing session %s", c.ID, target.ID())
	}
	return target, nil
}

// findJoinableLocked scans for a waiting, non-full session of the same mode
// and capacity. Iteration order over the map is randomized by the runtime;
// sort by id so the choice is stable. Assumes mu is held.
func (d *Directory) findJoinableLocked(mode Mode, capacity int) Session {
	var candidates []Session
	for _, s := range d.sessions {
		if s.Mode() == mode && s.PlayerCapacity() == capacity &&
			s.State() == StateWaiting && !s.Full() {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ID().String() < candidates[j].ID().String()
	})
	return candidates[0]
}

func (d *Directory) newSessionLocked(mode Mode, capacity int) (Session, error) {
	if mode.Tournament() {
		return newTournament(mode, capacity, d.cfg, d.rec, d.waitWindow, d.removeSession)
	}
	return newOneOff(mode, d.cfg, d.rec, d.removeSession), nil
}

// removeSession is every session's end callback. It runs outside session
// locks.
func (d *Directory) removeSession(s Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, s.ID())
	for cid, sess := range d.byClient {
		if sess == s {
			delete(d.byClient, cid)
		}
	}
	log.Infof("directory: session %s removed", s.ID())
}

// SessionFor returns the session a client is seated in, or nil.
func (d *Directory) SessionFor(clientID uuid.UUID) Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byClient[clientID]
}

// Get returns a session by id.
func (d *Directory) Get(sessionID uuid.UUID) Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[sessionID]
}

// Quit handles a deliberate quit_game: the session applies its forfeit
// rules; a surviving remote tournament just loses this one seat.
func (d *Directory) Quit(clientID uuid.UUID) {
	d.mu.Lock()
	s := d.byClient[clientID]
	if s != nil && s.Mode() == ModeRemoteTournament {
		delete(d.byClient, clientID)
	}
	d.mu.Unlock()
	if s != nil {
		s.Quit(clientID)
	}
}

// RemoveClient drops the client from its session immediately: ordinary
// sessions end, a remote tournament sheds the seat and ends only when no
// clients remain.
func (d *Directory) RemoveClient(clientID uuid.UUID) {
	d.mu.Lock()
	s := d.byClient[clientID]
	delete(d.byClient, clientID)
	delete(d.connCount, clientID)
	if t, ok := d.graceTimers[clientID]; ok {
		t.Stop()
		delete(d.graceTimers, clientID)
	}
	d.mu.Unlock()
	if s != nil {
		s.ClientGone(clientID)
	}
}

// ClientDisconnected arms the reconnect grace period. If the client does
// not come back in time it is removed from its session and the logout
// notifier fires.
func (d *Directory) ClientDisconnected(clientID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connCount[clientID] > 0 {
		d.connCount[clientID]--
	}
	if _, ok := d.byClient[clientID]; !ok {
		delete(d.connCount, clientID)
		return
	}
	if d.connCount[clientID] > 0 {
		// A newer connection already took over this identity.
		return
	}
	if t, ok := d.graceTimers[clientID]; ok {
		t.Stop()
	}
	d.graceTimers[clientID] = time.AfterFunc(d.grace, func() {
		d.graceExpired(clientID)
	})
	log.Infof("directory: client %s disconnected, grace period %s", clientID, d.grace)
}

// ClientReconnected registers a live connection for the identity and cancels
// any pending grace timer. Reports whether the client still holds a seat.
func (d *Directory) ClientReconnected(clientID uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connCount[clientID]++
	if t, ok := d.graceTimers[clientID]; ok {
		t.Stop()
		delete(d.graceTimers, clientID)
	}
	_, seated := d.byClient[clientID]
	return seated
}

func (d *Directory) graceExpired(clientID uuid.UUID) {
	d.mu.Lock()
	delete(d.graceTimers, clientID)
	_, seated := d.byClient[clientID]
	notify := d.notifyLogout
	d.mu.Unlock()

	if seated {
		log.Infof("directory: grace period expired for client %s", clientID)
		d.RemoveClient(clientID)
	}
	if notify != nil {
		notify(clientID)
	}
}

// Spectate attaches the client to a session as a watcher.
func (d *Directory) Spectate(c *models.Client, sessionID uuid.UUID) (Session, error) {
	d.mu.Lock()
	s := d.sessions[sessionID]
	d.mu.Unlock()
	if s == nil {
		return nil, ErrNoSuchSession
	}
	if err := s.AddSpectator(c); err != nil {
		return nil, err
	}
	return s, nil
}

// Lobby lists every live session for the lobby browser.
func (d *Directory) Lobby() []LobbyEntry {
	d.mu.Lock()
	sessions := make([]Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
	}
	d.mu.Unlock()

	entries := make([]LobbyEntry, 0, len(sessions))
	for _, s := range sessions {
		entries = append(entries, s.Summary())
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SessionID.String() < entries[j].SessionID.String()
	})
	return entries
}
