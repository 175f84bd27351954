package dedupe

import (
	"go.uber.org/zap"
)

// ContactSource supplies the existing, non-deleted, non-archived contacts a
// candidate is scored against.
type ContactSource interface {
	Candidates() []Candidate
}

// Service handles duplicate detection requests.
type Service struct {
	source   ContactSource
	detector *Detector
	logger   *zap.Logger
}

// NewService creates a new dedupe service.
func NewService(source ContactSource, logger *zap.Logger) *Service {
	return &Service{
		source:   source,
		detector: NewDetector(),
		logger:   logger,
	}
}

// Check scores the candidate snapshot against every active contact and
// returns the ranked matches.
func (s *Service) Check(candidate Snapshot) []Match {
	matches := s.detector.DetectAll(candidate, s.source.Candidates())
	return matches
}

// DuplicatePair is one suspected duplicate found by a full scan.
type DuplicatePair struct {
	ContactID      string  `json:"contact_id"`
	CardName       string  `json:"card_name"`
	OtherContactID string  `json:"other_contact_id"`
	OtherCardName  string  `json:"other_card_name"`
	Percentage     float64 `json:"percentage"`
	Rule           string  `json:"rule,omitempty"`
}

// Scan compares every active contact against every other one and returns the
// pairs flagged as duplicates. Each pair is reported once.
func (s *Service) Scan() []DuplicatePair {
	cands := s.source.Candidates()
	var pairs []DuplicatePair
	for i, a := range cands {
		for _, m := range s.detector.DetectAll(a.Snapshot, cands[i+1:]) {
			if !m.IsDuplicate {
				continue
			}
			pairs = append(pairs, DuplicatePair{
				ContactID:      a.ContactID,
				CardName:       a.CardName,
				OtherContactID: m.ContactID,
				OtherCardName:  m.CardName,
				Percentage:     m.Percentage,
				Rule:           m.Rule,
			})
		}
	}
	s.logger.Info("Duplicate scan completed",
		zap.Int("contacts", len(cands)),
		zap.Int("pairs", len(pairs)))
	return pairs
}

// Duplicates returns only the matches flagged as duplicates, ranked.
func (s *Service) Duplicates(candidate Snapshot) []Match {
	var dups []Match
	for _, m := range s.Check(candidate) {
		if m.IsDuplicate {
			dups = append(dups, m)
		}
	}
	return dups
}
