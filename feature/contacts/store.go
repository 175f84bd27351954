package contacts

import (
	"strings"
	"sync"
	"time"

	"contact-manager/feature/contacts/models"

	"go.uber.org/zap"
)

// EventType identifies a contact store mutation.
type EventType string

const (
	EventCreated             EventType = "contact_created"
	EventUpdated             EventType = "contact_updated"
	EventDeleted             EventType = "contact_deleted"
	EventArchived            EventType = "contact_archived"
	EventRestored            EventType = "contact_restored"
	EventShared              EventType = "contact_shared"
	EventAccessRevoked       EventType = "access_revoked"
	EventRestorationComplete EventType = "sharing_restoration_complete"
	EventSyncConflictSkipped EventType = "sync_conflict_skipped"
)

// Event is emitted by the store after a mutation commits.
type Event struct {
	Type      EventType `json:"type"`
	ContactID string    `json:"contact_id"`
	Username  string    `json:"username,omitempty"`
	At        time.Time `json:"at"`
}

// Store is the in-memory authoritative map from logical contact identity to
// contact record. It is mutated exclusively by the feature services and
// exposed read-only to the rest of the application. UI layers consume
// mutations through the Subscribe observer channel instead of an event bus.
type Store struct {
	mu       sync.RWMutex
	owned    map[string]*models.Contact
	received map[string]*models.SharedContactView

	subMu  sync.Mutex
	subs   []chan Event
	logger *zap.Logger
}

// NewStore creates an empty contact store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		owned:    make(map[string]*models.Contact),
		received: make(map[string]*models.SharedContactView),
		logger:   logger,
	}
}

// Subscribe registers an observer channel with the given buffer size.
// Events that would block are dropped; observers are advisory only.
func (s *Store) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

// Emit publishes an event to all observers without blocking.
func (s *Store) Emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Debug("event observer full, dropping event",
				zap.String("type", string(ev.Type)),
				zap.String("contact_id", ev.ContactID))
		}
	}
}

// Put inserts or replaces an owned contact and reports whether it was created.
func (s *Store) Put(c *models.Contact) bool {
	s.mu.Lock()
	_, existed := s.owned[c.ContactID]
	s.owned[c.ContactID] = c.Clone()
	s.mu.Unlock()

	if existed {
		s.Emit(Event{Type: EventUpdated, ContactID: c.ContactID})
	} else {
		s.Emit(Event{Type: EventCreated, ContactID: c.ContactID})
	}
	return !existed
}

// Get returns a copy of the owned contact with the given id.
func (s *Store) Get(contactID string) (*models.Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.owned[contactID]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// All returns copies of every owned contact, including archived and deleted ones.
func (s *Store) All() []*models.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Contact, 0, len(s.owned))
	for _, c := range s.owned {
		out = append(out, c.Clone())
	}
	return out
}

// Active returns copies of owned contacts that are neither deleted nor archived.
func (s *Store) Active() []*models.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Contact, 0, len(s.owned))
	for _, c := range s.owned {
		if c.IsActive() {
			out = append(out, c.Clone())
		}
	}
	return out
}

// Remove hard-deletes an owned contact from the store.
func (s *Store) Remove(contactID string) {
	s.mu.Lock()
	_, existed := s.owned[contactID]
	delete(s.owned, contactID)
	s.mu.Unlock()
	if existed {
		s.Emit(Event{Type: EventDeleted, ContactID: contactID})
	}
}

// FindByExternalID locates the owned contact matching an external directory
// identity, either through its recorded href or through the UID embedded in
// its card payload.
func (s *Store) FindByExternalID(externalID string) (*models.Contact, bool) {
	if externalID == "" {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.owned {
		if es := c.Metadata.ExternalSync; es != nil && es.Href != "" && hrefMatches(es.Href, externalID) {
			return c.Clone(), true
		}
		if uid := ExtractUID(c.VCard); uid != "" && uid == externalID {
			return c.Clone(), true
		}
	}
	return nil, false
}

// RecordAccess updates the usage overlay of an owned contact in place.
// Usage tracking is not a local edit: it does not bump the sync version.
func (s *Store) RecordAccess(contactID, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.owned[contactID]; ok {
		c.Metadata.Usage.Record(kind, time.Now(), MaxInteractionEntries)
	}
}

// UpsertView inserts or refreshes a received view. The recipient's local-only
// overlay (archived state and usage) survives content refreshes.
func (s *Store) UpsertView(v *models.SharedContactView) {
	s.mu.Lock()
	if prev, ok := s.received[v.Key]; ok {
		v.Archived = prev.Archived
		v.Usage = prev.Usage
	}
	cp := *v
	s.received[v.Key] = &cp
	s.mu.Unlock()
}

// View returns the received view with the given derived key.
func (s *Store) View(key string) (*models.SharedContactView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.received[key]
	if !ok {
		return nil, false
	}
	cp := *v
	return &cp, true
}

// Views returns copies of all received views.
func (s *Store) Views() []*models.SharedContactView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.SharedContactView, 0, len(s.received))
	for _, v := range s.received {
		cp := *v
		out = append(out, &cp)
	}
	return out
}

// ViewsBySharer returns copies of the views received from one sharer.
func (s *Store) ViewsBySharer(sharer string) []*models.SharedContactView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.SharedContactView
	for _, v := range s.received {
		if v.SharedBy == sharer {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out
}

// RemoveView drops a received view, typically on derived revocation.
func (s *Store) RemoveView(key string) {
	s.mu.Lock()
	v, existed := s.received[key]
	delete(s.received, key)
	s.mu.Unlock()
	if existed {
		s.Emit(Event{Type: EventAccessRevoked, ContactID: v.OriginalContactID, Username: v.SharedBy})
	}
}

// ArchiveView toggles the local-only archived overlay of a received view.
func (s *Store) ArchiveView(key string, archived bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.received[key]
	if !ok {
		return false
	}
	v.Archived = archived
	return true
}

// ApplySnapshot replaces the owned set with a full snapshot from the backing
// store. The backing store may redeliver the current snapshot at any time, so
// this is idempotent: unchanged records produce no events, and replaying the
// same snapshot twice leaves the store byte-identical.
func (s *Store) ApplySnapshot(snapshot []*models.Contact) {
	incoming := make(map[string]*models.Contact, len(snapshot))
	for _, c := range snapshot {
		incoming[c.ContactID] = c
	}

	var events []Event

	s.mu.Lock()
	for id, next := range incoming {
		prev, ok := s.owned[id]
		switch {
		case !ok:
			events = append(events, Event{Type: EventCreated, ContactID: id})
		case prev.Metadata.Sync.Version != next.Metadata.Sync.Version:
			events = append(events, Event{Type: EventUpdated, ContactID: id})
		}
		s.owned[id] = next.Clone()
	}
	for id := range s.owned {
		if _, ok := incoming[id]; !ok {
			delete(s.owned, id)
			events = append(events, Event{Type: EventDeleted, ContactID: id})
		}
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.Emit(ev)
	}
}

// hrefMatches reports whether a directory href refers to the external id.
func hrefMatches(href, externalID string) bool {
	// hrefs end in "<uid>.vcf"; compare the trailing path segment.
	tail := href
	if i := strings.LastIndexByte(tail, '/'); i >= 0 {
		tail = tail[i+1:]
	}
	tail = strings.TrimSuffix(tail, ".vcf")
	return tail == externalID
}
