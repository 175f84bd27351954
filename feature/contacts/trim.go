package contacts

import (
	"encoding/json"
	"errors"
	"fmt"

	"contact-manager/feature/contacts/models"
)

// The backing stores enforce a hard per-record size ceiling. Every persist
// goes through EnsureSize, which progressively trims the bounded history
// fields. Card content is never a trim target: an oversized card is a hard
// failure.
const (
	// MaxRecordBytes is the per-record size ceiling of the backing store.
	MaxRecordBytes = 10 * 1024

	// MaxShareHistoryEntries caps the share history log.
	MaxShareHistoryEntries = 5
	// MaxInteractionEntries caps the usage interaction log.
	MaxInteractionEntries = 5
	// trimmedLogEntries is the reduced cap applied when a record is oversized.
	trimmedLogEntries = 3
)

// ErrCardTooLarge reports a card payload that alone exceeds the size ceiling.
var ErrCardTooLarge = errors.New("card payload exceeds the record size ceiling")

// ErrRecordTooLarge reports a record that stays oversized after trimming.
var ErrRecordTooLarge = errors.New("record exceeds the size ceiling after trimming")

// EnsureSize returns a copy of the contact that serializes within the record
// size ceiling, trimming the bounded logs from 5 down to 3 entries if needed.
func EnsureSize(c *models.Contact) (*models.Contact, error) {
	bounded := capLogs(c.Clone(), MaxShareHistoryEntries, MaxInteractionEntries)

	size, err := serializedSize(bounded)
	if err != nil {
		return nil, err
	}
	if size <= MaxRecordBytes {
		return bounded, nil
	}

	bounded = capLogs(bounded, trimmedLogEntries, trimmedLogEntries)
	size, err = serializedSize(bounded)
	if err != nil {
		return nil, err
	}
	if size <= MaxRecordBytes {
		return bounded, nil
	}

	if len(bounded.VCard) > MaxRecordBytes {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrCardTooLarge, c.ContactID, len(bounded.VCard))
	}
	return nil, fmt.Errorf("%w: %s (%d bytes)", ErrRecordTooLarge, c.ContactID, size)
}

func capLogs(c *models.Contact, historyMax, interactionMax int) *models.Contact {
	if len(c.Metadata.Sharing.History) > historyMax {
		c.Metadata.Sharing.History = c.Metadata.Sharing.History[len(c.Metadata.Sharing.History)-historyMax:]
	}
	if len(c.Metadata.Usage.Interactions) > interactionMax {
		c.Metadata.Usage.Interactions = c.Metadata.Usage.Interactions[len(c.Metadata.Usage.Interactions)-interactionMax:]
	}
	return c
}

func serializedSize(c *models.Contact) (int, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return 0, fmt.Errorf("failed to measure record %s: %w", c.ContactID, err)
	}
	return len(data), nil
}
