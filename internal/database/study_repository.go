package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/trialwell/pipeline/internal/domain"
)

// StudyRepository owns the write path to the processed.studies table and
// its bridge tables. No other component mutates them.
type StudyRepository struct {
	db *sqlx.DB
}

// NewStudyRepository creates a new study repository.
func NewStudyRepository(db *sqlx.DB) *StudyRepository {
	return &StudyRepository{db: db}
}

// UpsertStudy inserts or updates the study keyed by its external row_id
// and returns the surrogate study id. Re-running the pipeline for the same
// row_id updates the existing row (last-write-wins), never duplicates it.
func (r *StudyRepository) UpsertStudy(ctx context.Context, row *domain.StudyRow) (int64, error) {
	query := `
		INSERT INTO processed.studies
			(row_id, org_id, responsible_party_id, brief_title, full_title,
			 overall_status_id, start_date, primary_purpose_id, study_type_id,
			 phase_id, outcome_measure, medical_subject_heading, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		ON CONFLICT (row_id) DO UPDATE SET
			org_id = EXCLUDED.org_id,
			responsible_party_id = EXCLUDED.responsible_party_id,
			brief_title = EXCLUDED.brief_title,
			full_title = EXCLUDED.full_title,
			overall_status_id = EXCLUDED.overall_status_id,
			start_date = EXCLUDED.start_date,
			primary_purpose_id = EXCLUDED.primary_purpose_id,
			study_type_id = EXCLUDED.study_type_id,
			phase_id = EXCLUDED.phase_id,
			outcome_measure = EXCLUDED.outcome_measure,
			medical_subject_heading = EXCLUDED.medical_subject_heading,
			updated_at = NOW()
		RETURNING study_id
	`

	var studyID int64
	err := r.db.QueryRowContext(ctx, query,
		row.RowID,
		row.OrgID,
		row.ResponsiblePartyID,
		row.BriefTitle,
		row.FullTitle,
		row.OverallStatusID,
		row.StartDate,
		row.PrimaryPurposeID,
		row.StudyTypeID,
		row.PhaseID,
		row.OutcomeMeasure,
		row.MedicalSubjectHeading,
	).Scan(&studyID)
	if err != nil {
		return 0, fmt.Errorf("upsert study row_id=%d: %w", row.RowID, err)
	}

	return studyID, nil
}

// LinkCondition associates a study with a condition. Duplicate attempts
// are no-ops.
func (r *StudyRepository) LinkCondition(ctx context.Context, studyID, conditionID int64) error {
	query := `
		INSERT INTO processed.study_conditions (study_id, condition_id)
		VALUES ($1, $2)
		ON CONFLICT (study_id, condition_id) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, studyID, conditionID); err != nil {
		return fmt.Errorf("link condition: %w", err)
	}
	return nil
}

// LinkIntervention associates a study with an intervention. Duplicate
// attempts are no-ops.
func (r *StudyRepository) LinkIntervention(ctx context.Context, studyID, interventionID int64) error {
	query := `
		INSERT INTO processed.study_interventions (study_id, intervention_id)
		VALUES ($1, $2)
		ON CONFLICT (study_id, intervention_id) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, studyID, interventionID); err != nil {
		return fmt.Errorf("link intervention: %w", err)
	}
	return nil
}

// LinkAgeGroup associates a study with a standard-age group. Duplicate
// attempts are no-ops.
func (r *StudyRepository) LinkAgeGroup(ctx context.Context, studyID, ageGroupID int64) error {
	query := `
		INSERT INTO processed.study_age_groups (study_id, age_group_id)
		VALUES ($1, $2)
		ON CONFLICT (study_id, age_group_id) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, studyID, ageGroupID); err != nil {
		return fmt.Errorf("link age group: %w", err)
	}
	return nil
}
