package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// lookupTable describes one lookup or entity table resolved by value.
// Table, column, and id column names are fixed at compile time; only the
// values are parameterized.
type lookupTable struct {
	table  string
	column string
	idCol  string
}

// Lookup tables of the processed schema, keyed by categorical field.
var (
	orgClassTable         = lookupTable{table: "processed.org_class", column: "org_class", idCol: "id"}
	responsiblePartyTable = lookupTable{table: "processed.responsible_party", column: "responsible_party", idCol: "id"}
	overallStatusTable    = lookupTable{table: "processed.overall_status", column: "overall_status", idCol: "id"}
	primaryPurposeTable   = lookupTable{table: "processed.primary_purpose", column: "primary_purpose", idCol: "id"}
	studyTypeTable        = lookupTable{table: "processed.study_type", column: "study_type", idCol: "id"}
	phaseTable            = lookupTable{table: "processed.phase", column: "phase", idCol: "id"}
	standardAgeTable      = lookupTable{table: "processed.standard_age", column: "standard_age", idCol: "id"}
	conditionTable        = lookupTable{table: "processed.condition", column: "condition", idCol: "condition_id"}
)

// LookupRepository resolves categorical values against the shared lookup
// and entity tables, creating rows on first sight. It is the only writer
// to those tables.
type LookupRepository struct {
	db *sqlx.DB
}

// NewLookupRepository creates a new lookup repository.
func NewLookupRepository(db *sqlx.DB) *LookupRepository {
	return &LookupRepository{db: db}
}

// getOrCreate returns the identity of the row holding value, inserting it
// first if none exists. The read-before-insert is only a fast path; the
// uniqueness guarantee comes from the conflict-tolerant insert followed by
// a definitive read, which stays correct under concurrent callers.
func (r *LookupRepository) getOrCreate(ctx context.Context, t lookupTable, value string) (int64, error) {
	selectQuery := fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s = $1`,
		t.idCol, t.table, t.column,
	)

	var id int64
	err := r.db.GetContext(ctx, &id, selectQuery, value)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup %s: %w", t.table, err)
	}

	insertQuery := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES ($1) ON CONFLICT (%s) DO NOTHING RETURNING %s`,
		t.table, t.column, t.column, t.idCol,
	)

	err = r.db.QueryRowContext(ctx, insertQuery, value).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("insert %s: %w", t.table, err)
	}

	// Another writer won the insert race; the definitive read resolves it.
	if err := r.db.GetContext(ctx, &id, selectQuery, value); err != nil {
		return 0, fmt.Errorf("re-read %s after conflict: %w", t.table, err)
	}
	return id, nil
}

// GetOrCreateOrgClass resolves an organization-class value.
func (r *LookupRepository) GetOrCreateOrgClass(ctx context.Context, value string) (int64, error) {
	return r.getOrCreate(ctx, orgClassTable, value)
}

// GetOrCreateResponsibleParty resolves a responsible-party value.
func (r *LookupRepository) GetOrCreateResponsibleParty(ctx context.Context, value string) (int64, error) {
	return r.getOrCreate(ctx, responsiblePartyTable, value)
}

// GetOrCreateOverallStatus resolves an overall-status value.
func (r *LookupRepository) GetOrCreateOverallStatus(ctx context.Context, value string) (int64, error) {
	return r.getOrCreate(ctx, overallStatusTable, value)
}

// GetOrCreatePrimaryPurpose resolves a primary-purpose value.
func (r *LookupRepository) GetOrCreatePrimaryPurpose(ctx context.Context, value string) (int64, error) {
	return r.getOrCreate(ctx, primaryPurposeTable, value)
}

// GetOrCreateStudyType resolves a study-type value.
func (r *LookupRepository) GetOrCreateStudyType(ctx context.Context, value string) (int64, error) {
	return r.getOrCreate(ctx, studyTypeTable, value)
}

// GetOrCreatePhase resolves a phase value.
func (r *LookupRepository) GetOrCreatePhase(ctx context.Context, value string) (int64, error) {
	return r.getOrCreate(ctx, phaseTable, value)
}

// GetOrCreateStandardAge resolves a standard-age value.
func (r *LookupRepository) GetOrCreateStandardAge(ctx context.Context, value string) (int64, error) {
	return r.getOrCreate(ctx, standardAgeTable, value)
}

// GetOrCreateCondition resolves a condition value.
func (r *LookupRepository) GetOrCreateCondition(ctx context.Context, value string) (int64, error) {
	return r.getOrCreate(ctx, conditionTable, value)
}

// GetOrCreateOrganization resolves an organization by name. The class
// foreign key follows the latest record (last-write-wins on conflict),
// consistent with the study upsert.
func (r *LookupRepository) GetOrCreateOrganization(ctx context.Context, name string, orgClassID *int64) (int64, error) {
	query := `
		INSERT INTO processed.organization (org_name, org_class_id)
		VALUES ($1, $2)
		ON CONFLICT (org_name) DO UPDATE SET org_class_id = EXCLUDED.org_class_id
		RETURNING id
	`

	var id int64
	if err := r.db.QueryRowContext(ctx, query, name, orgClassID).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert organization: %w", err)
	}
	return id, nil
}

// GetOrCreateIntervention resolves an intervention by name. A description
// carried by the current record replaces the stored one; records without a
// description leave the stored one intact.
func (r *LookupRepository) GetOrCreateIntervention(ctx context.Context, name string, description *string) (int64, error) {
	query := `
		INSERT INTO processed.intervention (intervention, intervention_description)
		VALUES ($1, $2)
		ON CONFLICT (intervention) DO UPDATE
			SET intervention_description = COALESCE(EXCLUDED.intervention_description, intervention.intervention_description)
		RETURNING intervention_id
	`

	var id int64
	if err := r.db.QueryRowContext(ctx, query, name, description).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert intervention: %w", err)
	}
	return id, nil
}
