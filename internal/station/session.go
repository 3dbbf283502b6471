// Package station keeps the per-station, per-participant interaction state:
// which view is open and which inventory slot the participant has selected.
// The host owns the canonical copy; only the selection is replicated, and
// only to the owning participant.
package station

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gravitas-games/stationhost/internal/catalog"
	"github.com/gravitas-games/stationhost/internal/inventory"
	"github.com/gravitas-games/stationhost/pkg/models"
)

var (
	ErrNotOpen   = errors.New("station: no open session")
	ErrBadSource = errors.New("station: unknown selection source")
)

// Source is where a selection points.
type Source int

const (
	SourceNone Source = iota
	SourceGeneral
	SourceHotbar
)

// String returns a human-readable representation of the source.
func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceGeneral:
		return "general"
	case SourceHotbar:
		return "hotbar"
	default:
		return "unknown"
	}
}

// ParseSource converts a wire string into a Source.
func ParseSource(s string) (Source, error) {
	switch s {
	case "", "none":
		return SourceNone, nil
	case "general":
		return SourceGeneral, nil
	case "hotbar":
		return SourceHotbar, nil
	}
	return SourceNone, ErrBadSource
}

func (s Source) MarshalText() ([]byte, error) {
	if s < SourceNone || s > SourceHotbar {
		return nil, ErrBadSource
	}
	return []byte(s.String()), nil
}

func (s *Source) UnmarshalText(b []byte) error {
	v, err := ParseSource(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Selection is the replicated part of a session.
type Selection struct {
	Source     Source                 `json:"source"`
	Index      int                    `json:"index"`
	Definition inventory.DefinitionID `json:"definition"`
}

// NoSelection is the cleared state.
func NoSelection() Selection {
	return Selection{Source: SourceNone, Index: -1}
}

// IsNone reports whether nothing is selected.
func (s Selection) IsNone() bool { return s.Source == SourceNone }

// Ref converts the selection to a slot reference.
func (s Selection) Ref() (inventory.SlotRef, bool) {
	switch s.Source {
	case SourceGeneral:
		return inventory.General(s.Index), true
	case SourceHotbar:
		return inventory.Hotbar(s.Index), true
	}
	return inventory.SlotRef{}, false
}

// Session is one participant's open view of one station.
type Session struct {
	Station     models.StationID     `json:"station"`
	Kind        catalog.StationKind  `json:"kind"`
	Participant models.ParticipantID `json:"participant"`
	Agent       models.AgentID       `json:"agent"`
	View        string               `json:"view,omitempty"`
	Selection   Selection            `json:"selection"`
	OpenedAt    time.Time            `json:"openedAt"`
}

// Replica is what the owning participant sees.
type Replica struct {
	Station   models.StationID `json:"station"`
	Open      bool             `json:"open"`
	Selection Selection        `json:"selection"`
}

// Replicated returns the owner-visible subset of s.
func (s Session) Replicated() Replica {
	return Replica{Station: s.Station, Open: true, Selection: s.Selection}
}

// Closed returns the replica sent when a session ends.
func Closed(station models.StationID) Replica {
	return Replica{Station: station, Selection: NoSelection()}
}

type sessionKey struct {
	station     models.StationID
	participant models.ParticipantID
}

// Table holds every open session on the host.
type Table struct {
	mu       sync.RWMutex
	sessions map[sessionKey]*Session
	now      func() time.Time
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		sessions: make(map[sessionKey]*Session),
		now:      time.Now,
	}
}

// Open starts (or restarts) a session. Reopening clears the selection.
func (t *Table) Open(st catalog.Station, participant models.ParticipantID, agent models.AgentID, view string) Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &Session{
		Station:     st.ID,
		Kind:        st.Kind,
		Participant: participant,
		Agent:       agent,
		View:        view,
		Selection:   NoSelection(),
		OpenedAt:    t.now(),
	}
	t.sessions[sessionKey{st.ID, participant}] = s
	return *s
}

// Close ends a session.
func (t *Table) Close(station models.StationID, participant models.ParticipantID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := sessionKey{station, participant}
	if _, ok := t.sessions[k]; !ok {
		return false
	}
	delete(t.sessions, k)
	return true
}

// CloseAll ends every session of a participant, as on disconnect.
func (t *Table) CloseAll(participant models.ParticipantID) []Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	var closed []Session
	for k, s := range t.sessions {
		if k.participant == participant {
			closed = append(closed, *s)
			delete(t.sessions, k)
		}
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].Station < closed[j].Station })
	return closed
}

// Get returns a copy of a session.
func (t *Table) Get(station models.StationID, participant models.ParticipantID) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[sessionKey{station, participant}]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Select records a selection. The caller has already checked the slot
// against the authoritative store; def is what it held at that moment.
func (t *Table) Select(station models.StationID, participant models.ParticipantID, src Source, index int, def inventory.DefinitionID) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionKey{station, participant}]
	if !ok {
		return Session{}, ErrNotOpen
	}
	switch src {
	case SourceNone:
		s.Selection = NoSelection()
	case SourceGeneral, SourceHotbar:
		s.Selection = Selection{Source: src, Index: index, Definition: def}
	default:
		return Session{}, ErrBadSource
	}
	return *s, nil
}

// Clear drops the selection of a session.
func (t *Table) Clear(station models.StationID, participant models.ParticipantID) (Session, error) {
	return t.Select(station, participant, SourceNone, -1, 0)
}

// Revalidate clears every selection of agent whose slot is out of range or
// no longer holds the selected definition. It returns the sessions changed.
func (t *Table) Revalidate(agent models.AgentID, store *inventory.Store) []Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	var changed []Session
	for _, s := range t.sessions {
		if s.Agent != agent || s.Selection.IsNone() {
			continue
		}
		ref, _ := s.Selection.Ref()
		cur := store.GetSlot(ref)
		if store.InRange(ref) && !cur.IsEmpty() && cur.Def == s.Selection.Definition {
			continue
		}
		s.Selection = NoSelection()
		changed = append(changed, *s)
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].Station < changed[j].Station })
	return changed
}

// Observers returns the sessions open on a station.
func (t *Table) Observers(station models.StationID) []Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Session
	for k, s := range t.sessions {
		if k.station == station {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Participant < out[j].Participant })
	return out
}

// ForParticipant returns every open session of a participant.
func (t *Table) ForParticipant(participant models.ParticipantID) []Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Session
	for k, s := range t.sessions {
		if k.participant == participant {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Station < out[j].Station })
	return out
}

// Count returns the number of open sessions.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
