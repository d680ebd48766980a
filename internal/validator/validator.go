// Package validator filters staged study records before transformation.
package validator

import (
	"errors"

	"github.com/trialwell/pipeline/internal/domain"
	"github.com/trialwell/pipeline/internal/logger"
)

// Validation rejection reasons. These are recorded alongside the rejected
// record; they are never raised as faults and never halt a batch.
var (
	// ErrMissingRowID rejects a record with no external identity.
	ErrMissingRowID = errors.New("missing row_id")
	// ErrMissingTitles rejects a record with neither title present.
	ErrMissingTitles = errors.New("missing both brief_title and full_title")
)

// Validator applies the minimal structural rules a staged record must meet
// before it can be transformed. Categorical typos, malformed dates, and
// empty multi-value strings are transformation concerns, not validation
// failures.
type Validator struct {
	logger logger.Logger
}

// New creates a new validator.
func New(log logger.Logger) *Validator {
	return &Validator{logger: log}
}

// ValidateStudy checks a single staged record. It returns nil for an
// acceptable record, or the rejection reason otherwise.
func (v *Validator) ValidateStudy(study *domain.RawStudy) error {
	if study.RowID == nil {
		v.logger.Warn("study missing row_id", logger.Int64("staging_id", study.ID))
		return ErrMissingRowID
	}

	if isAbsent(study.BriefTitle) && isAbsent(study.FullTitle) {
		v.logger.Warn("study missing both titles", logger.Int64("row_id", *study.RowID))
		return ErrMissingTitles
	}

	return nil
}

// ValidateBatch partitions a batch of staged records into valid and invalid
// subsets. Input order is preserved within each partition and inputs are
// never mutated; every record lands in exactly one partition.
func (v *Validator) ValidateBatch(studies []*domain.RawStudy) (valid []*domain.RawStudy, invalid []domain.RejectedStudy) {
	valid = make([]*domain.RawStudy, 0, len(studies))
	invalid = make([]domain.RejectedStudy, 0)

	for _, study := range studies {
		if reason := v.ValidateStudy(study); reason != nil {
			invalid = append(invalid, domain.RejectedStudy{Study: study, Reason: reason})
			continue
		}
		valid = append(valid, study)
	}

	v.logger.Info("validated batch",
		logger.Int("valid", len(valid)),
		logger.Int("invalid", len(invalid)),
	)

	return valid, invalid
}

func isAbsent(s *string) bool {
	return s == nil || *s == ""
}
