package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/trialwell/pipeline/internal/domain"
)

// StagingRepository reads and writes the staging.raw_studies table. Staged
// rows are immutable once written; the pipeline only ever re-reads them.
type StagingRepository struct {
	db *sqlx.DB
}

// NewStagingRepository creates a new staging repository.
func NewStagingRepository(db *sqlx.DB) *StagingRepository {
	return &StagingRepository{db: db}
}

// Ping checks database connectivity.
func (r *StagingRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// InsertRawStudy stages one raw record.
func (r *StagingRepository) InsertRawStudy(ctx context.Context, study *domain.RawStudy) error {
	query := `
		INSERT INTO staging.raw_studies
			(batch_id, ingestion_timestamp, source_file, raw_data, row_id,
			 org_name, org_class, responsible_party, brief_title, full_title,
			 overall_status, start_date, standard_age, conditions, primary_purpose,
			 interventions, intervention_description, study_type, phase,
			 outcome_measure, medical_subject_heading)
		VALUES ($1, NOW(), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20)
	`

	_, err := r.db.ExecContext(ctx, query,
		study.BatchID,
		study.SourceFile,
		[]byte(study.RawData),
		study.RowID,
		study.OrgName,
		study.OrgClass,
		study.ResponsibleParty,
		study.BriefTitle,
		study.FullTitle,
		study.OverallStatus,
		study.StartDate,
		study.StandardAge,
		study.Conditions,
		study.PrimaryPurpose,
		study.Interventions,
		study.InterventionDescription,
		study.StudyType,
		study.Phase,
		study.OutcomeMeasure,
		study.MedicalSubjectHeading,
	)
	if err != nil {
		return fmt.Errorf("insert raw study: %w", err)
	}

	return nil
}

// ListBatchIDs returns the distinct batch ids present in staging, oldest
// staged first.
func (r *StagingRepository) ListBatchIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT batch_id
		FROM staging.raw_studies
		WHERE batch_id IS NOT NULL
		GROUP BY batch_id
		ORDER BY MIN(id)
	`

	var batchIDs []string
	if err := r.db.SelectContext(ctx, &batchIDs, query); err != nil {
		return nil, fmt.Errorf("list batch ids: %w", err)
	}
	return batchIDs, nil
}

// GetBatch returns all staged rows of one batch in staged order.
func (r *StagingRepository) GetBatch(ctx context.Context, batchID string) ([]*domain.RawStudy, error) {
	query := `
		SELECT id, batch_id, ingestion_timestamp, source_file, raw_data, row_id,
		       org_name, org_class, responsible_party, brief_title, full_title,
		       overall_status, start_date, standard_age, conditions, primary_purpose,
		       interventions, intervention_description, study_type, phase,
		       outcome_measure, medical_subject_heading
		FROM staging.raw_studies
		WHERE batch_id = $1
		ORDER BY id
	`

	var studies []*domain.RawStudy
	if err := r.db.SelectContext(ctx, &studies, query, batchID); err != nil {
		return nil, fmt.Errorf("get batch %s: %w", batchID, err)
	}
	return studies, nil
}

// ExistingRowIDs returns the set of row_ids already staged. Used by the
// backfill logic to skip records staged by a previous run.
func (r *StagingRepository) ExistingRowIDs(ctx context.Context) (map[int64]struct{}, error) {
	query := `SELECT row_id FROM staging.raw_studies WHERE row_id IS NOT NULL`

	var rowIDs []int64
	if err := r.db.SelectContext(ctx, &rowIDs, query); err != nil {
		return nil, fmt.Errorf("existing row ids: %w", err)
	}

	existing := make(map[int64]struct{}, len(rowIDs))
	for _, id := range rowIDs {
		existing[id] = struct{}{}
	}
	return existing, nil
}
