// Package domain contains the core domain models for the studies pipeline.
package domain

import (
	"encoding/json"
	"time"
)

// RawStudy is one staged row from the staging.raw_studies table. It is
// produced by the ingestion layer and never mutated after staging. All
// clinical fields are nullable; validation decides which absences matter.
type RawStudy struct {
	ID                 int64           `db:"id"                  json:"id"`
	BatchID            *string         `db:"batch_id"            json:"batch_id,omitempty"`
	IngestionTimestamp *time.Time      `db:"ingestion_timestamp" json:"ingestion_timestamp,omitempty"`
	SourceFile         *string         `db:"source_file"         json:"source_file,omitempty"`
	RawData            json.RawMessage `db:"raw_data"            json:"raw_data,omitempty"`

	// RowID is the externally-assigned unique identity of the trial.
	RowID *int64 `db:"row_id" json:"row_id,omitempty"`

	OrgName                 *string `db:"org_name"                 json:"org_name,omitempty"`
	OrgClass                *string `db:"org_class"                json:"org_class,omitempty"`
	ResponsibleParty        *string `db:"responsible_party"        json:"responsible_party,omitempty"`
	BriefTitle              *string `db:"brief_title"              json:"brief_title,omitempty"`
	FullTitle               *string `db:"full_title"               json:"full_title,omitempty"`
	OverallStatus           *string `db:"overall_status"           json:"overall_status,omitempty"`
	StartDate               *string `db:"start_date"               json:"start_date,omitempty"`
	StandardAge             *string `db:"standard_age"             json:"standard_age,omitempty"`
	Conditions              *string `db:"conditions"               json:"conditions,omitempty"`
	PrimaryPurpose          *string `db:"primary_purpose"          json:"primary_purpose,omitempty"`
	Interventions           *string `db:"interventions"            json:"interventions,omitempty"`
	InterventionDescription *string `db:"intervention_description" json:"intervention_description,omitempty"`
	StudyType               *string `db:"study_type"               json:"study_type,omitempty"`
	Phase                   *string `db:"phase"                    json:"phase,omitempty"`
	OutcomeMeasure          *string `db:"outcome_measure"          json:"outcome_measure,omitempty"`
	MedicalSubjectHeading   *string `db:"medical_subject_heading"  json:"medical_subject_heading,omitempty"`
}

// Intervention pairs an intervention name with its optional description.
type Intervention struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// TransformedStudy is the normalized in-memory form of one valid RawStudy.
// It is consumed immediately by the loader and never persisted itself.
type TransformedStudy struct {
	RowID int64

	OrgName               *string
	OrgClass              *string
	ResponsibleParty      *string
	BriefTitle            *string
	FullTitle             *string
	OverallStatus         *string
	StartDate             *time.Time
	PrimaryPurpose        *string
	StudyType             *string
	Phase                 *string
	OutcomeMeasure        *string
	MedicalSubjectHeading *string

	Conditions    []string
	AgeGroups     []string
	Interventions []Intervention
}

// RejectedStudy pairs a raw record with the validation rule it failed.
type RejectedStudy struct {
	Study  *RawStudy
	Reason error
}

// StudyRow carries the resolved foreign keys and scalar columns for one
// upsert into processed.studies.
type StudyRow struct {
	RowID                 int64
	OrgID                 *int64
	ResponsiblePartyID    *int64
	BriefTitle            *string
	FullTitle             *string
	OverallStatusID       *int64
	StartDate             *time.Time
	PrimaryPurposeID      *int64
	StudyTypeID           *int64
	PhaseID               *int64
	OutcomeMeasure        *string
	MedicalSubjectHeading *string
}

// RecordFailure reports a persistence fault for a single record within a
// batch. Failures never abort sibling records.
type RecordFailure struct {
	RowID int64  `json:"row_id"`
	Error string `json:"error"`
}

// BatchReport summarizes one pipeline run over a staged batch.
type BatchReport struct {
	BatchID     string          `json:"batch_id"`
	Total       int             `json:"total"`
	Valid       int             `json:"valid"`
	Invalid     int             `json:"invalid"`
	Loaded      []int64         `json:"loaded"`
	Failures    []RecordFailure `json:"failures,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
}
