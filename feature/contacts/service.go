package contacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contact-manager/feature/contacts/models"
	"contact-manager/feature/dedupe"

	"github.com/google/uuid"
	"github.com/gookit/validate"
	"go.uber.org/zap"
)

// ErrNotFound reports an unknown contact id.
var ErrNotFound = errors.New("contact not found")

// ValidationError is returned for malformed input. It is a structured
// failure result: it never escapes the API boundary as a panic or a 500.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// DuplicateError is returned when the import path blocks a create because
// the candidate matched existing contacts.
type DuplicateError struct {
	Matches []dedupe.Match
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("likely duplicate of %d existing contact(s)", len(e.Matches))
}

// CreateInput is the payload for creating or importing a contact.
// Field-level sanitization happens upstream; this layer only checks shape.
type CreateInput struct {
	CardName     string   `json:"card_name" validate:"required"`
	VCard        string   `json:"vcard" validate:"required"`
	Phones       []string `json:"phones"`
	Emails       []string `json:"emails"`
	Organization string   `json:"organization"`
	Title        string   `json:"title"`

	// Imported marks records whose authority originates externally.
	Imported bool `json:"imported"`
	// AllowDuplicate creates the contact even when the detector flags it.
	AllowDuplicate bool `json:"allow_duplicate"`
}

// UpdateInput is the payload for editing a contact.
type UpdateInput struct {
	CardName string `json:"card_name" validate:"required"`
	VCard    string `json:"vcard" validate:"required"`
}

// UpdateListener observes a successful edit of an owned contact.
type UpdateListener func(ctx context.Context, c *models.Contact)

// Service handles contact lifecycle operations.
type Service struct {
	store     *Store
	repo      *Repository
	dedupe    *dedupe.Service
	logger    *zap.Logger
	now       func() time.Time
	onUpdated []UpdateListener
}

// NewService creates a new contact service. repo and dedupeSvc may be nil;
// the service then runs in-memory only, respectively without import dedup.
func NewService(store *Store, repo *Repository, dedupeSvc *dedupe.Service, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		repo:   repo,
		dedupe: dedupeSvc,
		logger: logger,
		now:    time.Now,
	}
}

// Store exposes the underlying contact store.
func (s *Service) Store() *Store {
	return s.store
}

// OnUpdated registers a listener invoked after every successful edit.
// Registration happens during wiring, before the service handles requests.
func (s *Service) OnUpdated(l UpdateListener) {
	s.onUpdated = append(s.onUpdated, l)
}

// Migrate ensures the persistence schema exists. No-op without a repository.
func (s *Service) Migrate() error {
	if s.repo == nil {
		return nil
	}
	return s.repo.Migrate()
}

// Hydrate replays the persisted snapshot into the in-memory store.
func (s *Service) Hydrate(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	snapshot, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	s.store.ApplySnapshot(snapshot)
	s.logger.Info("Contact store hydrated", zap.Int("contacts", len(snapshot)))
	return nil
}

// Create validates the input, runs the duplicate check and creates an owned
// contact. Returned matches are informational when the create succeeds and
// the blocking evidence when it fails with a DuplicateError.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Contact, []dedupe.Match, error) {
	if err := validateInput(&in); err != nil {
		return nil, nil, err
	}
	if err := ValidateCard(in.VCard); err != nil {
		return nil, nil, &ValidationError{Message: err.Error()}
	}

	var matches []dedupe.Match
	if s.dedupe != nil {
		matches = s.dedupe.Check(snapshotFromInput(in))
		if !in.AllowDuplicate && len(matches) > 0 && matches[0].IsDuplicate {
			return nil, matches, &DuplicateError{Matches: duplicatesOnly(matches)}
		}
	}

	now := s.now()
	c := &models.Contact{
		ContactID: uuid.NewString(),
		CardName:  in.CardName,
		VCard:     in.VCard,
		Metadata: models.Metadata{
			IsOwned:    true,
			IsImported: in.Imported,
		},
	}
	c.Touch(now)

	if err := s.persist(ctx, c); err != nil {
		return nil, matches, err
	}
	s.store.Put(c)
	return c, matches, nil
}

// Update edits an owned contact and bumps its version.
func (s *Service) Update(ctx context.Context, contactID string, in UpdateInput) (*models.Contact, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	if err := ValidateCard(in.VCard); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	c, ok := s.store.Get(contactID)
	if !ok {
		return nil, ErrNotFound
	}

	c.CardName = in.CardName
	c.VCard = in.VCard
	c.Touch(s.now())

	if err := s.persist(ctx, c); err != nil {
		return nil, err
	}
	s.store.Put(c)
	for _, l := range s.onUpdated {
		l(ctx, c)
	}
	return c, nil
}

// Archive marks a contact archived. Archived contacts are excluded from
// sharing, sync pushes and duplicate scoring, but keep their data.
func (s *Service) Archive(ctx context.Context, contactID string) error {
	return s.setFlags(ctx, contactID, func(c *models.Contact) EventType {
		c.Metadata.IsArchived = true
		return EventArchived
	})
}

// Restore clears the archived flag of a contact.
func (s *Service) Restore(ctx context.Context, contactID string) error {
	return s.setFlags(ctx, contactID, func(c *models.Contact) EventType {
		c.Metadata.IsArchived = false
		return EventRestored
	})
}

// Delete soft-deletes a contact. The record stays recoverable; only
// non-owned views are ever removed outright.
func (s *Service) Delete(ctx context.Context, contactID string) error {
	return s.setFlags(ctx, contactID, func(c *models.Contact) EventType {
		c.Metadata.IsDeleted = true
		return EventDeleted
	})
}

func (s *Service) setFlags(ctx context.Context, contactID string, mutate func(*models.Contact) EventType) error {
	c, ok := s.store.Get(contactID)
	if !ok {
		return ErrNotFound
	}

	evType := mutate(c)
	c.Touch(s.now())

	if err := s.persist(ctx, c); err != nil {
		return err
	}
	s.store.Put(c)
	s.store.Emit(Event{Type: evType, ContactID: contactID})
	return nil
}

// SaveOwned commits an already-mutated owned contact: local persistence
// first, then the in-memory store. It is the write-through used by the
// sharing and sync features.
func (s *Service) SaveOwned(ctx context.Context, c *models.Contact) error {
	if err := s.persist(ctx, c); err != nil {
		return err
	}
	s.store.Put(c)
	return nil
}

func (s *Service) persist(ctx context.Context, c *models.Contact) error {
	if s.repo == nil {
		s.logger.Debug("No database configured, keeping contact in memory only",
			zap.String("contact_id", c.ContactID))
		return nil
	}
	return s.repo.Save(ctx, c)
}

func validateInput(in any) error {
	v := validate.Struct(in)
	if !v.Validate() {
		return &ValidationError{Message: v.Errors.One()}
	}
	return nil
}

func snapshotFromInput(in CreateInput) dedupe.Snapshot {
	snap := ExtractSnapshot(in.CardName, in.VCard)
	if len(in.Phones) > 0 {
		snap.Phones = in.Phones
	}
	if len(in.Emails) > 0 {
		snap.Emails = in.Emails
	}
	if in.Organization != "" {
		snap.Organization = in.Organization
	}
	if in.Title != "" {
		snap.Title = in.Title
	}
	return snap
}

func duplicatesOnly(matches []dedupe.Match) []dedupe.Match {
	var dups []dedupe.Match
	for _, m := range matches {
		if m.IsDuplicate {
			dups = append(dups, m)
		}
	}
	return dups
}

// CandidateSource adapts the contact store to the duplicate detector.
type CandidateSource struct {
	store *Store
}

// NewCandidateSource creates a dedupe candidate source over the store.
func NewCandidateSource(store *Store) *CandidateSource {
	return &CandidateSource{store: store}
}

// Candidates returns snapshots of every active contact.
func (cs *CandidateSource) Candidates() []dedupe.Candidate {
	active := cs.store.Active()
	out := make([]dedupe.Candidate, 0, len(active))
	for _, c := range active {
		out = append(out, dedupe.Candidate{
			ContactID: c.ContactID,
			CardName:  c.CardName,
			Snapshot:  ExtractSnapshot(c.CardName, c.VCard),
		})
	}
	return out
}
