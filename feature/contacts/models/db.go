package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ContactRecord is the 'contacts' table row for an owned contact.
// Metadata is stored as a JSON document so the tagged structure can evolve
// without schema migrations.
type ContactRecord struct {
	ContactID string    `gorm:"column:contact_id;primaryKey;size:64"`
	Owner     string    `gorm:"column:owner;index;size:128"`
	CardName  string    `gorm:"column:card_name;size:255"`
	VCard     string    `gorm:"column:vcard;type:mediumtext"`
	Metadata  string    `gorm:"column:metadata;type:text"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName overrides the table name.
func (ContactRecord) TableName() string {
	return "contacts"
}

// ToContact deserializes the row into the canonical model.
func (r ContactRecord) ToContact() (*Contact, error) {
	var md Metadata
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &md); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", r.ContactID, err)
		}
	}
	return &Contact{
		ContactID: r.ContactID,
		CardName:  r.CardName,
		VCard:     r.VCard,
		Metadata:  md,
	}, nil
}

// NewContactRecord serializes the canonical model into a row.
func NewContactRecord(owner string, c *Contact) (*ContactRecord, error) {
	md, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata for %s: %w", c.ContactID, err)
	}
	return &ContactRecord{
		ContactID: c.ContactID,
		Owner:     owner,
		CardName:  c.CardName,
		VCard:     c.VCard,
		Metadata:  string(md),
		UpdatedAt: time.Now(),
	}, nil
}
