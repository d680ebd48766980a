// Package staging ingests ClinicalTrials CSV exports into the staging
// schema, one batch per run.
package staging

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/trialwell/pipeline/internal/domain"
)

// CSV column headers of the ClinicalTrials export.
const (
	colRowID                   = "Unnamed: 0"
	colOrgName                 = "Organization Full Name"
	colOrgClass                = "Organization Class"
	colResponsibleParty        = "Responsible Party"
	colBriefTitle              = "Brief Title"
	colFullTitle               = "Full Title"
	colOverallStatus           = "Overall Status"
	colStartDate               = "Start Date"
	colStandardAge             = "Standard Age"
	colConditions              = "Conditions"
	colPrimaryPurpose          = "Primary Purpose"
	colInterventions           = "Interventions"
	colInterventionDescription = "Intervention Description"
	colStudyType               = "Study Type"
	colPhase                   = "Phases"
	colOutcomeMeasure          = "Outcome Measure"
	colMedicalSubjectHeading   = "Medical Subject Headings"
)

// Parser streams a ClinicalTrials CSV export as RawStudy records. Every
// row of one Parse run carries the same generated batch id, and the full
// source row is preserved as JSON in RawData.
type Parser struct {
	path    string
	batchID string
}

// NewParser creates a parser for the given CSV file with a fresh batch id.
func NewParser(path string) *Parser {
	return &Parser{
		path:    path,
		batchID: uuid.NewString(),
	}
}

// BatchID returns the batch id assigned to this parse run.
func (p *Parser) BatchID() string {
	return p.batchID
}

// Parse reads the CSV file and calls fn for each row. A non-nil error from
// fn stops the scan.
func (p *Parser) Parse(fn func(*domain.RawStudy) error) error {
	f, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}

	for {
		record, readErr := r.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read csv row: %w", readErr)
		}

		study, rowErr := p.rowToStudy(header, index, record)
		if rowErr != nil {
			return rowErr
		}

		if fnErr := fn(study); fnErr != nil {
			return fnErr
		}
	}

	return nil
}

// rowToStudy maps one CSV record to a staged RawStudy.
func (p *Parser) rowToStudy(header []string, index map[string]int, record []string) (*domain.RawStudy, error) {
	cell := func(name string) *string {
		i, ok := index[name]
		if !ok || i >= len(record) || record[i] == "" {
			return nil
		}
		value := record[i]
		return &value
	}

	rowMap := make(map[string]string, len(header))
	for i, name := range header {
		if i < len(record) {
			rowMap[name] = record[i]
		}
	}
	rawData, err := json.Marshal(rowMap)
	if err != nil {
		return nil, fmt.Errorf("marshal raw row: %w", err)
	}

	study := &domain.RawStudy{
		BatchID:                 &p.batchID,
		SourceFile:              &p.path,
		RawData:                 rawData,
		RowID:                   parseRowID(cell(colRowID)),
		OrgName:                 cell(colOrgName),
		OrgClass:                cell(colOrgClass),
		ResponsibleParty:        cell(colResponsibleParty),
		BriefTitle:              cell(colBriefTitle),
		FullTitle:               cell(colFullTitle),
		OverallStatus:           cell(colOverallStatus),
		StartDate:               cell(colStartDate),
		StandardAge:             cell(colStandardAge),
		Conditions:              cell(colConditions),
		PrimaryPurpose:          cell(colPrimaryPurpose),
		Interventions:           cell(colInterventions),
		InterventionDescription: cell(colInterventionDescription),
		StudyType:               cell(colStudyType),
		Phase:                   cell(colPhase),
		OutcomeMeasure:          cell(colOutcomeMeasure),
		MedicalSubjectHeading:   cell(colMedicalSubjectHeading),
	}

	return study, nil
}

// parseRowID converts the export's row index cell to an external id. A
// missing or non-numeric cell stages as absent; the validator rejects it
// later.
func parseRowID(value *string) *int64 {
	if value == nil {
		return nil
	}
	id, err := strconv.ParseInt(*value, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}
