package contacts

import (
	"fmt"
	"strings"

	"contact-manager/feature/dedupe"
)

// The card payload is opaque to this core. Beyond validating the envelope,
// the helpers below only extract the external identity field and the flat
// field snapshot the duplicate detector scores on; no card parsing,
// validation or serialization happens here.

// ExtractUID returns the UID property of a card payload, or "" if absent.
func ExtractUID(vcard string) string {
	return cardProperty(vcard, "UID")
}

// ValidateCard checks the card envelope without inspecting its content.
func ValidateCard(vcard string) error {
	trimmed := strings.TrimSpace(vcard)
	if trimmed == "" {
		return fmt.Errorf("card payload is empty")
	}
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "BEGIN:VCARD") || !strings.HasSuffix(upper, "END:VCARD") {
		return fmt.Errorf("card payload is not a vCard envelope")
	}
	return nil
}

// ExtractSnapshot builds the duplicate-scoring snapshot for a contact.
// The display label wins over the FN property when both are present.
func ExtractSnapshot(cardName, vcard string) dedupe.Snapshot {
	snap := dedupe.Snapshot{
		Name:         cardName,
		Phones:       cardProperties(vcard, "TEL"),
		Emails:       cardProperties(vcard, "EMAIL"),
		Organization: cardProperty(vcard, "ORG"),
		Title:        cardProperty(vcard, "TITLE"),
	}
	if snap.Name == "" {
		snap.Name = cardProperty(vcard, "FN")
	}
	return snap
}

// cardProperty returns the first value of the named property.
func cardProperty(vcard, name string) string {
	values := cardProperties(vcard, name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// cardProperties returns all values of the named property. Property
// parameters (e.g. TEL;TYPE=CELL) are ignored.
func cardProperties(vcard, name string) []string {
	var values []string
	for _, line := range strings.Split(vcard, "\n") {
		line = strings.TrimRight(line, "\r")
		sep := strings.IndexByte(line, ':')
		if sep < 0 {
			continue
		}
		prop := line[:sep]
		if i := strings.IndexByte(prop, ';'); i >= 0 {
			prop = prop[:i]
		}
		if !strings.EqualFold(prop, name) {
			continue
		}
		if v := strings.TrimSpace(line[sep+1:]); v != "" {
			values = append(values, v)
		}
	}
	return values
}
