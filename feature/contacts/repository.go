package contacts

import (
	"context"
	"errors"
	"fmt"

	"contact-manager/feature/contacts/models"

	"gorm.io/gorm"
)

// ErrMissingIdentity reports a record that lacks its storage-assigned identity.
// Such records are never persisted; the operation is aborted instead.
var ErrMissingIdentity = errors.New("contact record is missing its identity")

// Repository persists owned contacts to the private record store.
type Repository struct {
	db    *gorm.DB
	owner string
}

// NewRepository creates a repository scoped to the acting owner.
func NewRepository(db *gorm.DB, owner string) *Repository {
	return &Repository{db: db, owner: owner}
}

// Migrate ensures the contacts table exists.
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(&models.ContactRecord{})
}

// Save upserts an owned contact after size validation and log trimming.
func (r *Repository) Save(ctx context.Context, c *models.Contact) error {
	if c.ContactID == "" {
		return fmt.Errorf("%w: refusing to persist %q", ErrMissingIdentity, c.CardName)
	}

	bounded, err := EnsureSize(c)
	if err != nil {
		return err
	}

	rec, err := models.NewContactRecord(r.owner, bounded)
	if err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("failed to persist contact %s: %w", c.ContactID, err)
	}
	return nil
}

// Get loads one owned contact by id.
func (r *Repository) Get(ctx context.Context, contactID string) (*models.Contact, error) {
	var rec models.ContactRecord
	err := r.db.WithContext(ctx).
		Where("contact_id = ? AND owner = ?", contactID, r.owner).
		First(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load contact %s: %w", contactID, err)
	}
	return rec.ToContact()
}

// List loads every owned contact for the acting owner.
func (r *Repository) List(ctx context.Context) ([]*models.Contact, error) {
	var recs []models.ContactRecord
	err := r.db.WithContext(ctx).
		Where("owner = ?", r.owner).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	out := make([]*models.Contact, 0, len(recs))
	for _, rec := range recs {
		c, err := rec.ToContact()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Delete removes the row of a hard-deleted contact.
func (r *Repository) Delete(ctx context.Context, contactID string) error {
	err := r.db.WithContext(ctx).
		Where("contact_id = ? AND owner = ?", contactID, r.owner).
		Delete(&models.ContactRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete contact %s: %w", contactID, err)
	}
	return nil
}
