package sharing

import (
	"context"
	"errors"
	"fmt"

	"contact-manager/feature/contacts"
	"contact-manager/feature/contacts/models"

	"go.uber.org/zap"
)

// ErrUnknownList reports a distribution list name with no definition.
var ErrUnknownList = errors.New("unknown distribution list")

// RemoteCleaner removes recipient-side directory entries after a revocation.
// Cleanup is best effort: the authoritative removal is the shared copy.
type RemoteCleaner interface {
	CleanupShare(ctx context.Context, recipient, contactID string) error
}

// Service orchestrates sharing operations: grants and shared copies through
// the strategy, list expansion through the resolver, and persistence through
// the contact service.
type Service struct {
	contacts *contacts.Service
	strategy *Strategy
	resolver *Resolver
	cleaner  RemoteCleaner
	owner    string
	workers  int
	logger   *zap.Logger
}

// NewService creates the sharing service. cleaner may be nil when no
// external directory is connected.
func NewService(contactSvc *contacts.Service, strategy *Strategy, resolver *Resolver, cleaner RemoteCleaner, owner string, workers int, logger *zap.Logger) *Service {
	s := &Service{
		contacts: contactSvc,
		strategy: strategy,
		resolver: resolver,
		cleaner:  cleaner,
		owner:    owner,
		workers:  workers,
		logger:   logger,
	}
	// Local edits must reach every recipient's copy. Propagation is best
	// effort; a storage failure never fails the edit itself.
	contactSvc.OnUpdated(func(ctx context.Context, c *models.Contact) {
		if len(c.Metadata.Sharing.SharedWith) == 0 {
			return
		}
		if err := s.RefreshShares(ctx, c.ContactID); err != nil {
			s.logger.Warn("Failed to refresh shared copies after edit",
				zap.String("contact_id", c.ContactID),
				zap.Error(err))
		}
	})
	return s
}

// Strategy exposes the copy-level strategy for the sync feature.
func (s *Service) Strategy() *Strategy {
	return s.strategy
}

// Resolver exposes the distribution list resolver.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// Share grants the recipients access to a contact. Recipients equal to the
// acting owner are skipped, already-granted recipients count as
// already_shared, and each failure is isolated to its recipient.
func (s *Service) Share(ctx context.Context, contactID string, recipients []string, perm models.SharePermission) (*BatchResult, error) {
	c, ok := s.contacts.Store().Get(contactID)
	if !ok {
		return nil, contacts.ErrNotFound
	}
	if !c.IsActive() {
		return nil, fmt.Errorf("contact %s is not active", contactID)
	}

	filtered := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r == s.owner {
			s.logger.Debug("Skipping share with the acting owner", zap.String("contact_id", contactID))
			continue
		}
		filtered = append(filtered, r)
	}

	result := s.strategy.ShareWithMany(ctx, c, filtered, perm, s.workers)

	if err := s.contacts.SaveOwned(ctx, c); err != nil {
		return result, err
	}
	for user, outcome := range result.PerUser {
		if outcome == string(OutcomeShared) {
			s.contacts.Store().Emit(contacts.Event{
				Type:      contacts.EventShared,
				ContactID: contactID,
				Username:  user,
			})
		}
	}
	return result, nil
}

// ShareWithList expands a distribution list at call time and shares with its
// current members.
func (s *Service) ShareWithList(ctx context.Context, contactID, listName string, perm models.SharePermission) (*BatchResult, error) {
	members, ok := s.resolver.Resolve(listName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownList, listName)
	}
	return s.Share(ctx, contactID, members, perm)
}

// Revoke removes one recipient's access to a contact.
func (s *Service) Revoke(ctx context.Context, contactID, recipient string) error {
	c, ok := s.contacts.Store().Get(contactID)
	if !ok {
		return contacts.ErrNotFound
	}

	existed, err := s.strategy.Revoke(ctx, c, recipient)
	if err != nil {
		return err
	}
	if !existed {
		return nil
	}

	if err := s.contacts.SaveOwned(ctx, c); err != nil {
		return err
	}
	s.contacts.Store().Emit(contacts.Event{
		Type:      contacts.EventAccessRevoked,
		ContactID: contactID,
		Username:  recipient,
	})

	if s.cleaner != nil {
		if err := s.cleaner.CleanupShare(ctx, recipient, contactID); err != nil {
			s.logger.Warn("Directory cleanup after revoke failed",
				zap.String("contact_id", contactID),
				zap.String("recipient", recipient),
				zap.Error(err))
		}
	}
	return nil
}

// RefreshShares rewrites the shared copies of a contact after a local edit so
// every recipient sees the latest content.
func (s *Service) RefreshShares(ctx context.Context, contactID string) error {
	c, ok := s.contacts.Store().Get(contactID)
	if !ok {
		return contacts.ErrNotFound
	}
	return s.strategy.Refresh(ctx, c)
}

// RestoreShares walks every active contact and repopulates missing shared
// copies. Permissions are never modified; restoration heals storage only.
func (s *Service) RestoreShares(ctx context.Context) (int, error) {
	repaired := 0
	for _, c := range s.contacts.Store().Active() {
		if len(c.Metadata.Sharing.SharedWith) == 0 {
			continue
		}
		n, err := s.strategy.EnsureShares(ctx, c)
		repaired += n
		if err != nil {
			return repaired, err
		}
	}

	s.contacts.Store().Emit(contacts.Event{Type: contacts.EventRestorationComplete})
	s.logger.Info("Sharing restoration complete", zap.Int("repaired", repaired))
	return repaired, nil
}

// OnMemberAdded handles a user joining a distribution list: every contact
// already shared with the list is retroactively shared with the new member.
// A contact counts as list-shared when any other member holds a grant on it.
func (s *Service) OnMemberAdded(ctx context.Context, listName, username string) (int, error) {
	if !s.resolver.AddMember(listName, username) {
		return 0, nil
	}
	others := s.otherMembers(listName, username)
	if len(others) == 0 {
		return 0, nil
	}

	shared := 0
	for _, c := range s.contacts.Store().Active() {
		member, ok := sharedMember(c, others)
		if !ok || c.Metadata.Sharing.IsSharedWith(username) {
			continue
		}
		// Extend with the same permission the granted member holds.
		perm := c.Metadata.Sharing.Permissions[member]
		if _, err := s.Share(ctx, c.ContactID, []string{username}, perm); err != nil {
			return shared, err
		}
		shared++
	}
	s.logger.Info("Retroactive list share finished",
		zap.String("list", listName),
		zap.String("username", username),
		zap.Int("contacts", shared))
	return shared, nil
}

// OnMemberRemoved handles a user leaving a distribution list: contacts shared
// with any remaining member lose the departed member's grant.
func (s *Service) OnMemberRemoved(ctx context.Context, listName, username string) (int, error) {
	if !s.resolver.RemoveMember(listName, username) {
		return 0, nil
	}
	others := s.otherMembers(listName, username)
	if len(others) == 0 {
		return 0, nil
	}

	revoked := 0
	for _, c := range s.contacts.Store().Active() {
		if _, ok := sharedMember(c, others); !ok || !c.Metadata.Sharing.IsSharedWith(username) {
			continue
		}
		if err := s.Revoke(ctx, c.ContactID, username); err != nil {
			return revoked, err
		}
		revoked++
	}
	s.logger.Info("Retroactive list revoke finished",
		zap.String("list", listName),
		zap.String("username", username),
		zap.Int("contacts", revoked))
	return revoked, nil
}

func (s *Service) otherMembers(listName, username string) []string {
	members, ok := s.resolver.Resolve(listName)
	if !ok {
		return nil
	}
	others := members[:0]
	for _, m := range members {
		if m != username && m != s.owner {
			others = append(others, m)
		}
	}
	return others
}

// sharedMember returns the first of the given users that holds a grant on the
// contact. One granted member is enough to tie the contact to the list.
func sharedMember(c *models.Contact, users []string) (string, bool) {
	for _, u := range users {
		if c.Metadata.Sharing.IsSharedWith(u) {
			return u, true
		}
	}
	return "", false
}
