package dedupe

import (
	"sort"
	"strings"
)

// Field weights for the duplicate scorer.
const (
	weightPhone = 3.0
	weightEmail = 2.5
	weightName  = 2.0
	weightOrg   = 1.0
	weightTitle = 0.5
)

// Decision thresholds, matched in order by decide().
const (
	thresholdSingleField = 0.60
	thresholdSupported   = 0.70
	thresholdOverall     = 0.90
	thresholdShortName   = 0.95
	thresholdLongName    = 0.85
)

// Snapshot is the field view of a contact used for duplicate scoring.
// Fields are extracted upstream by the card collaborator; the detector
// never inspects card payloads itself.
type Snapshot struct {
	Name         string   `json:"name"`
	Phones       []string `json:"phones"`
	Emails       []string `json:"emails"`
	Organization string   `json:"organization"`
	Title        string   `json:"title"`
}

// Candidate pairs an existing contact identity with its snapshot.
type Candidate struct {
	ContactID string
	CardName  string
	Snapshot  Snapshot
}

// MatchedFields flags which fields matched between two snapshots.
type MatchedFields struct {
	Phone        bool `json:"phone"`
	Email        bool `json:"email"`
	Name         bool `json:"name"`
	Organization bool `json:"organization"`
	Title        bool `json:"title"`
}

// Match is the scored comparison of a candidate against one existing contact.
type Match struct {
	ContactID   string        `json:"contact_id"`
	CardName    string        `json:"card_name"`
	Score       float64       `json:"score"`
	MaxScore    float64       `json:"max_score"`
	Percentage  float64       `json:"percentage"`
	Fields      MatchedFields `json:"fields"`
	Rule        string        `json:"rule,omitempty"`
	IsDuplicate bool          `json:"is_duplicate"`
}

// Detector scores pairs of contact snapshots for likely-duplicate status.
// It is a pure component with no dependencies.
type Detector struct{}

// NewDetector creates a duplicate detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Compare scores one candidate snapshot against one existing snapshot.
func (d *Detector) Compare(candidate, existing Snapshot) Match {
	var m Match

	// Phone: exact match on the last seven digits.
	if len(candidate.Phones) > 0 && len(existing.Phones) > 0 {
		m.MaxScore += weightPhone
		if anyPhoneMatch(candidate.Phones, existing.Phones) {
			m.Score += weightPhone
			m.Fields.Phone = true
		}
	}

	// Email: exact, case-insensitive.
	if len(candidate.Emails) > 0 && len(existing.Emails) > 0 {
		m.MaxScore += weightEmail
		if anyEmailMatch(candidate.Emails, existing.Emails) {
			m.Score += weightEmail
			m.Fields.Email = true
		}
	}

	// Name: exact, or scaled by token overlap when at least half the
	// tokens line up (after nickname canonicalization).
	nameExact := false
	if candidate.Name != "" && existing.Name != "" {
		m.MaxScore += weightName
		overlap, exact := nameOverlap(candidate.Name, existing.Name)
		nameExact = exact
		switch {
		case exact:
			m.Score += weightName
			m.Fields.Name = true
		case overlap >= 0.5:
			m.Score += weightName * overlap
			m.Fields.Name = true
		}
	}

	// Organization and title are supporting evidence only: they count,
	// for both score and maximum, when a primary field already matched.
	primaryMatched := m.Fields.Phone || m.Fields.Email || m.Fields.Name
	if primaryMatched {
		if candidate.Organization != "" && existing.Organization != "" {
			m.MaxScore += weightOrg
			if strings.EqualFold(strings.TrimSpace(candidate.Organization), strings.TrimSpace(existing.Organization)) {
				m.Score += weightOrg
				m.Fields.Organization = true
			}
		}
		if candidate.Title != "" && existing.Title != "" {
			m.MaxScore += weightTitle
			if strings.EqualFold(strings.TrimSpace(candidate.Title), strings.TrimSpace(existing.Title)) {
				m.Score += weightTitle
				m.Fields.Title = true
			}
		}
	}

	if m.MaxScore > 0 {
		m.Percentage = m.Score / m.MaxScore
	}

	m.Rule, m.IsDuplicate = decide(m, nameExact, candidate.Name, existing.Name)
	return m
}

// DetectAll compares a candidate against every existing contact and returns
// all scored matches ranked highest score first.
func (d *Detector) DetectAll(candidate Snapshot, existing []Candidate) []Match {
	matches := make([]Match, 0, len(existing))
	for _, c := range existing {
		m := d.Compare(candidate, c.Snapshot)
		m.ContactID = c.ContactID
		m.CardName = c.CardName
		matches = append(matches, m)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ContactID < matches[j].ContactID
	})
	return matches
}

// decide applies the ordered decision rules; the first rule that matches wins.
func decide(m Match, nameExact bool, candidateName, existingName string) (string, bool) {
	f := m.Fields
	primaries := 0
	for _, matched := range []bool{f.Phone, f.Email, f.Name} {
		if matched {
			primaries++
		}
	}

	switch {
	case f.Phone && f.Name:
		return "phone_and_name", true
	case f.Email && f.Name:
		return "email_and_name", true
	case f.Phone && !f.Email && !f.Name && m.Percentage >= thresholdSingleField:
		return "phone_alone", true
	case f.Email && !f.Phone && !f.Name && m.Percentage >= thresholdSingleField:
		return "email_alone", true
	case nameExact && (f.Organization || f.Title) && m.Percentage >= thresholdSupported:
		return "exact_name_supported", true
	case m.Percentage >= thresholdOverall:
		return "overall", true
	case primaries >= 2 && m.Percentage >= thresholdSupported:
		return "multi_field", true
	case f.Name && !f.Phone && !f.Email:
		threshold := thresholdLongName
		if tokenCount(candidateName) <= 2 && tokenCount(existingName) <= 2 {
			threshold = thresholdShortName
		}
		if m.Percentage >= threshold {
			return "name_only", true
		}
	}
	return "", false
}

// normalizePhone keeps the trailing seven digits of a phone number.
func normalizePhone(phone string) string {
	var digits []byte
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			digits = append(digits, phone[i])
		}
	}
	if len(digits) > 7 {
		digits = digits[len(digits)-7:]
	}
	return string(digits)
}

func anyPhoneMatch(a, b []string) bool {
	seen := make(map[string]struct{}, len(a))
	for _, p := range a {
		if n := normalizePhone(p); n != "" {
			seen[n] = struct{}{}
		}
	}
	for _, p := range b {
		if n := normalizePhone(p); n != "" {
			if _, ok := seen[n]; ok {
				return true
			}
		}
	}
	return false
}

func anyEmailMatch(a, b []string) bool {
	seen := make(map[string]struct{}, len(a))
	for _, e := range a {
		if n := strings.ToLower(strings.TrimSpace(e)); n != "" {
			seen[n] = struct{}{}
		}
	}
	for _, e := range b {
		if n := strings.ToLower(strings.TrimSpace(e)); n != "" {
			if _, ok := seen[n]; ok {
				return true
			}
		}
	}
	return false
}

func tokenCount(name string) int {
	return len(strings.Fields(name))
}

// nameOverlap returns the token overlap ratio between two names and whether
// they match exactly after normalization.
func nameOverlap(a, b string) (float64, bool) {
	aTokens := strings.Fields(a)
	bTokens := strings.Fields(b)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0, false
	}

	aCanon := make([]string, len(aTokens))
	for i, t := range aTokens {
		aCanon[i] = canonicalToken(t)
	}
	bSet := make(map[string]struct{}, len(bTokens))
	bCanon := make([]string, len(bTokens))
	for i, t := range bTokens {
		bCanon[i] = canonicalToken(t)
		bSet[bCanon[i]] = struct{}{}
	}

	exact := len(aCanon) == len(bCanon)
	if exact {
		for i := range aCanon {
			if aCanon[i] != bCanon[i] {
				exact = false
				break
			}
		}
	}

	matched := 0
	for _, t := range aCanon {
		if _, ok := bSet[t]; ok {
			matched++
		}
	}

	longest := len(aCanon)
	if len(bCanon) > longest {
		longest = len(bCanon)
	}
	return float64(matched) / float64(longest), exact
}
