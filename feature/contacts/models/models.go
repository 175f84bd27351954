package models

import (
	"fmt"
	"time"
)

// PermissionLevel is the access level of a share grant.
type PermissionLevel string

const (
	// PermissionRead grants read-only access to a shared copy.
	PermissionRead PermissionLevel = "read"
	// PermissionWrite grants write access to a shared copy.
	PermissionWrite PermissionLevel = "write"
)

// SharePermission describes the access granted to a single recipient.
type SharePermission struct {
	Level      PermissionLevel `json:"level"`
	CanReshare bool            `json:"can_reshare"`
	SharedAt   time.Time       `json:"shared_at"`
}

// ShareEvent is one entry in the bounded share history log.
type ShareEvent struct {
	Action   string    `json:"action"` // granted, revoked, restored
	Username string    `json:"username"`
	At       time.Time `json:"at"`
}

// SharingInfo tracks who a contact is shared with.
// SharedWith never contains duplicates; AddGrant enforces that.
type SharingInfo struct {
	SharedWith  []string                   `json:"shared_with"`
	Permissions map[string]SharePermission `json:"permissions"`
	History     []ShareEvent               `json:"history"`
}

// IsSharedWith reports whether a grant exists for the given user.
func (s *SharingInfo) IsSharedWith(username string) bool {
	for _, u := range s.SharedWith {
		if u == username {
			return true
		}
	}
	return false
}

// AddGrant records a grant for the user, keeping SharedWith unique.
// Calling it again for the same user only updates the permission.
func (s *SharingInfo) AddGrant(username string, perm SharePermission) {
	if s.Permissions == nil {
		s.Permissions = make(map[string]SharePermission)
	}
	s.Permissions[username] = perm
	if !s.IsSharedWith(username) {
		s.SharedWith = append(s.SharedWith, username)
	}
}

// RemoveGrant deletes the grant for the user. It returns true if a grant existed.
func (s *SharingInfo) RemoveGrant(username string) bool {
	existed := false
	kept := s.SharedWith[:0]
	for _, u := range s.SharedWith {
		if u == username {
			existed = true
			continue
		}
		kept = append(kept, u)
	}
	s.SharedWith = kept
	if s.Permissions != nil {
		if _, ok := s.Permissions[username]; ok {
			existed = true
			delete(s.Permissions, username)
		}
	}
	return existed
}

// AppendHistory appends a share event, capping the log at max entries.
func (s *SharingInfo) AppendHistory(ev ShareEvent, max int) {
	s.History = append(s.History, ev)
	if max > 0 && len(s.History) > max {
		s.History = s.History[len(s.History)-max:]
	}
}

// Interaction is one entry in the bounded usage log.
type Interaction struct {
	Kind string    `json:"kind"`
	At   time.Time `json:"at"`
}

// UsageInfo tracks access statistics for a contact.
type UsageInfo struct {
	AccessCount    int           `json:"access_count"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
	Interactions   []Interaction `json:"interactions"`
}

// Record registers an interaction, capping the log at max entries.
func (u *UsageInfo) Record(kind string, at time.Time, max int) {
	u.AccessCount++
	u.LastAccessedAt = at
	u.Interactions = append(u.Interactions, Interaction{Kind: kind, At: at})
	if max > 0 && len(u.Interactions) > max {
		u.Interactions = u.Interactions[len(u.Interactions)-max:]
	}
}

// SyncInfo tracks local versioning for a contact.
type SyncInfo struct {
	// Version increments monotonically on every local edit.
	Version       int64     `json:"version"`
	LastSyncedAt  time.Time `json:"last_synced_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// ExternalSyncInfo holds directory-server state for externally synchronized
// records. A contact binds to at most one directory profile.
type ExternalSyncInfo struct {
	Profile      string    `json:"profile"`
	ETag         string    `json:"etag"`
	Href         string    `json:"href"`
	Addressbook  string    `json:"addressbook"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// Metadata is the tagged metadata structure of a contact. The sub-records are
// always present; ExternalSync exists only for externally synchronized records.
type Metadata struct {
	// IsOwned is set once at creation and never overwritten by inbound sync.
	IsOwned bool `json:"is_owned"`
	// IsImported marks records whose authority originates externally.
	// Like IsOwned it is fixed for the life of the record.
	IsImported bool `json:"is_imported"`
	IsArchived bool `json:"is_archived"`
	IsDeleted  bool `json:"is_deleted"`

	Sharing      SharingInfo       `json:"sharing"`
	Usage        UsageInfo         `json:"usage"`
	Sync         SyncInfo          `json:"sync"`
	ExternalSync *ExternalSyncInfo `json:"external_sync,omitempty"`
}

// Contact is the canonical owned record.
type Contact struct {
	// ContactID is the stable logical identity, assigned at creation and
	// scoped to the owner.
	ContactID string   `json:"contact_id"`
	CardName  string   `json:"card_name"`
	VCard     string   `json:"vcard"`
	Metadata  Metadata `json:"metadata"`
}

// IsActive reports whether the contact participates in sharing and sync.
func (c *Contact) IsActive() bool {
	return !c.Metadata.IsDeleted && !c.Metadata.IsArchived
}

// Touch marks a local edit: bumps the version and the last-updated timestamp.
func (c *Contact) Touch(now time.Time) {
	c.Metadata.Sync.Version++
	c.Metadata.Sync.LastUpdatedAt = now
}

// Clone returns a deep copy of the contact.
func (c *Contact) Clone() *Contact {
	cp := *c

	cp.Metadata.Sharing.SharedWith = append([]string(nil), c.Metadata.Sharing.SharedWith...)
	cp.Metadata.Sharing.History = append([]ShareEvent(nil), c.Metadata.Sharing.History...)
	if c.Metadata.Sharing.Permissions != nil {
		cp.Metadata.Sharing.Permissions = make(map[string]SharePermission, len(c.Metadata.Sharing.Permissions))
		for k, v := range c.Metadata.Sharing.Permissions {
			cp.Metadata.Sharing.Permissions[k] = v
		}
	}

	cp.Metadata.Usage.Interactions = append([]Interaction(nil), c.Metadata.Usage.Interactions...)

	if c.Metadata.ExternalSync != nil {
		es := *c.Metadata.ExternalSync
		cp.Metadata.ExternalSync = &es
	}

	return &cp
}

// SharedContactView is the recipient-side projection of someone else's contact.
// Archived state and usage tracking are local-only overlays; they never mutate
// the sharer's record.
type SharedContactView struct {
	Key               string `json:"key"`
	SharedBy          string `json:"shared_by"`
	OriginalContactID string `json:"original_contact_id"`
	// DatabaseID is the opaque handle of the originating shared copy.
	DatabaseID string          `json:"database_id"`
	CardName   string          `json:"card_name"`
	VCard      string          `json:"vcard"`
	Permission SharePermission `json:"permission"`
	Archived   bool            `json:"archived"`
	Usage      UsageInfo       `json:"usage"`
	ReceivedAt time.Time       `json:"received_at"`
}

// ViewKey derives the identity of a received view. The "shared:" prefix keeps
// it out of the owner's contactId space so the two can never collide.
func ViewKey(sharer, originalContactID string) string {
	return fmt.Sprintf("shared:%s:%s", sharer, originalContactID)
}

// DistributionList is a named alias for a set of recipient usernames.
// It is a pure fan-out convenience: no contact ever references a list, and
// deleting a list revokes nothing.
type DistributionList struct {
	Name      string   `json:"name"`
	Usernames []string `json:"usernames"`
}
