package sharing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"contact-manager/feature/contacts/models"

	"github.com/google/uuid"
)

// SharedEnvelope is the per-recipient shared copy of a contact. One envelope
// exists per (contact, recipient) pair so revoking one recipient never
// touches another recipient's copy.
type SharedEnvelope struct {
	// DatabaseID is the opaque identity of this shared copy, distinct from
	// the owner's contact id.
	DatabaseID string                 `json:"database_id"`
	Owner      string                 `json:"owner"`
	Recipient  string                 `json:"recipient"`
	ContactID  string                 `json:"contact_id"`
	CardName   string                 `json:"card_name"`
	VCard      string                 `json:"vcard"`
	Permission models.SharePermission `json:"permission"`
	SharedAt   time.Time              `json:"shared_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// NewEnvelope builds a fresh shared copy of the contact for one recipient.
func NewEnvelope(owner, recipient string, c *models.Contact, perm models.SharePermission, now time.Time) *SharedEnvelope {
	return &SharedEnvelope{
		DatabaseID: uuid.NewString(),
		Owner:      owner,
		Recipient:  recipient,
		ContactID:  c.ContactID,
		CardName:   c.CardName,
		VCard:      c.VCard,
		Permission: perm,
		SharedAt:   now,
		UpdatedAt:  now,
	}
}

// ToView projects the envelope into the recipient's local view model.
func (e *SharedEnvelope) ToView(receivedAt time.Time) *models.SharedContactView {
	return &models.SharedContactView{
		Key:               models.ViewKey(e.Owner, e.ContactID),
		SharedBy:          e.Owner,
		OriginalContactID: e.ContactID,
		DatabaseID:        e.DatabaseID,
		CardName:          e.CardName,
		VCard:             e.VCard,
		Permission:        e.Permission,
		ReceivedAt:        receivedAt,
	}
}

// Encode serializes the envelope for storage.
func (e *SharedEnvelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode shared copy %s: %w", e.DatabaseID, err)
	}
	return data, nil
}

// DecodeEnvelope deserializes a stored shared copy.
func DecodeEnvelope(data []byte) (*SharedEnvelope, error) {
	var e SharedEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode shared copy: %w", err)
	}
	return &e, nil
}

// Shared copies live under two mirrored prefixes so both sides can enumerate
// their shares in one prefix listing:
//
//	shares/outgoing/{owner}/{recipient}/{contactID}.json
//	shares/incoming/{recipient}/{owner}/{contactID}.json

// OutgoingKey is the owner-side object key of a shared copy.
func OutgoingKey(owner, recipient, contactID string) string {
	return fmt.Sprintf("shares/outgoing/%s/%s/%s.json", owner, recipient, contactID)
}

// IncomingKey is the recipient-side mirror key of a shared copy.
func IncomingKey(recipient, owner, contactID string) string {
	return fmt.Sprintf("shares/incoming/%s/%s/%s.json", recipient, owner, contactID)
}

// IncomingPrefix is the listing prefix for everything shared to a recipient.
func IncomingPrefix(recipient string) string {
	return fmt.Sprintf("shares/incoming/%s/", recipient)
}

// OutgoingPrefix is the listing prefix for everything a recipient shares out.
func OutgoingPrefix(owner string) string {
	return fmt.Sprintf("shares/outgoing/%s/", owner)
}

// parseIncomingKey splits an incoming object key into its sharer and contact
// id parts. It returns ok=false for keys outside the incoming layout.
func parseIncomingKey(key string) (sharer, contactID string, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 5 || parts[0] != "shares" || parts[1] != "incoming" {
		return "", "", false
	}
	contactID = strings.TrimSuffix(parts[4], ".json")
	return parts[3], contactID, true
}
