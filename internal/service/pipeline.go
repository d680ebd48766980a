// Package service orchestrates the validate, transform, and load stages of
// the studies pipeline.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trialwell/pipeline/internal/domain"
	"github.com/trialwell/pipeline/internal/logger"
	"github.com/trialwell/pipeline/internal/metrics"
	"github.com/trialwell/pipeline/internal/transformer"
	"github.com/trialwell/pipeline/internal/validator"
)

const defaultChunkSize = 1000

// StagingStore is the data access interface for staged raw records.
type StagingStore interface {
	InsertRawStudy(ctx context.Context, study *domain.RawStudy) error
	ListBatchIDs(ctx context.Context) ([]string, error)
	GetBatch(ctx context.Context, batchID string) ([]*domain.RawStudy, error)
	Ping(ctx context.Context) error
}

// LookupStore resolves categorical values to lookup-table identities,
// creating rows on first sight.
type LookupStore interface {
	GetOrCreateOrgClass(ctx context.Context, value string) (int64, error)
	GetOrCreateResponsibleParty(ctx context.Context, value string) (int64, error)
	GetOrCreateOverallStatus(ctx context.Context, value string) (int64, error)
	GetOrCreatePrimaryPurpose(ctx context.Context, value string) (int64, error)
	GetOrCreateStudyType(ctx context.Context, value string) (int64, error)
	GetOrCreatePhase(ctx context.Context, value string) (int64, error)
	GetOrCreateStandardAge(ctx context.Context, value string) (int64, error)
	GetOrCreateCondition(ctx context.Context, value string) (int64, error)
	GetOrCreateOrganization(ctx context.Context, name string, orgClassID *int64) (int64, error)
	GetOrCreateIntervention(ctx context.Context, name string, description *string) (int64, error)
}

// StudyStore upserts the main study row and its bridge associations.
type StudyStore interface {
	UpsertStudy(ctx context.Context, row *domain.StudyRow) (int64, error)
	LinkCondition(ctx context.Context, studyID, conditionID int64) error
	LinkIntervention(ctx context.Context, studyID, interventionID int64) error
	LinkAgeGroup(ctx context.Context, studyID, ageGroupID int64) error
}

// PipelineService runs the validate → transform → normalize/load pipeline
// over staged batches.
type PipelineService struct {
	staging     StagingStore
	lookups     LookupStore
	studies     StudyStore
	validator   *validator.Validator
	transformer *transformer.Transformer
	metrics     *metrics.Metrics
	logger      logger.Logger
	chunkSize   int
}

// NewPipelineService creates a new pipeline service. A zero chunkSize
// falls back to the default.
func NewPipelineService(
	staging StagingStore,
	lookups LookupStore,
	studies StudyStore,
	m *metrics.Metrics,
	log logger.Logger,
	chunkSize int,
) *PipelineService {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	return &PipelineService{
		staging:     staging,
		lookups:     lookups,
		studies:     studies,
		validator:   validator.New(log),
		transformer: transformer.New(log),
		metrics:     m,
		logger:      log,
		chunkSize:   chunkSize,
	}
}

// Ping checks connectivity to the persistence layer.
func (s *PipelineService) Ping(ctx context.Context) error {
	return s.staging.Ping(ctx)
}

// StageStudy writes one raw record to staging, assigning a batch id when
// the caller did not supply one.
func (s *PipelineService) StageStudy(ctx context.Context, study *domain.RawStudy) error {
	if study.BatchID == nil {
		batchID := uuid.NewString()
		study.BatchID = &batchID
	}

	if err := s.staging.InsertRawStudy(ctx, study); err != nil {
		return fmt.Errorf("stage study: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordsStaged.Inc()
	}
	return nil
}

// StageBatch writes many raw records to staging under a single batch id.
// It returns the batch id and the number of records staged before the
// first failure, if any.
func (s *PipelineService) StageBatch(ctx context.Context, studies []*domain.RawStudy) (string, int, error) {
	batchID := uuid.NewString()

	staged := 0
	for i, study := range studies {
		study.BatchID = &batchID
		if err := s.StageStudy(ctx, study); err != nil {
			return batchID, staged, fmt.Errorf("record %d: %w", i, err)
		}
		staged++
	}

	return batchID, staged, nil
}

// ListBatches returns the staged batch ids in staging order.
func (s *PipelineService) ListBatches(ctx context.Context) ([]string, error) {
	return s.staging.ListBatchIDs(ctx)
}

// ProcessBatch runs the pipeline over one staged batch. Persistence faults
// on individual records are collected in the report and never abort
// sibling records.
func (s *PipelineService) ProcessBatch(ctx context.Context, batchID string) (*domain.BatchReport, error) {
	start := time.Now()

	staged, err := s.staging.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("fetch batch %s: %w", batchID, err)
	}

	valid, invalid := s.validator.ValidateBatch(staged)
	if s.metrics != nil {
		s.metrics.RecordsValidated.Add(float64(len(valid)))
		s.metrics.RecordsRejected.Add(float64(len(invalid)))
	}

	report := &domain.BatchReport{
		BatchID: batchID,
		Total:   len(staged),
		Valid:   len(valid),
		Invalid: len(invalid),
		Loaded:  make([]int64, 0, len(valid)),
	}

	for offset := 0; offset < len(valid); offset += s.chunkSize {
		end := min(offset+s.chunkSize, len(valid))

		for _, raw := range valid[offset:end] {
			transformed := s.transformer.TransformStudy(raw)

			studyID, loadErr := s.normalizeAndLoad(ctx, transformed)
			if loadErr != nil {
				s.logger.Error("failed to load study",
					logger.Int64("row_id", transformed.RowID),
					logger.Error(loadErr),
				)
				report.Failures = append(report.Failures, domain.RecordFailure{
					RowID: transformed.RowID,
					Error: loadErr.Error(),
				})
				if s.metrics != nil {
					s.metrics.RecordsFailed.Inc()
				}
				continue
			}

			report.Loaded = append(report.Loaded, studyID)
			if s.metrics != nil {
				s.metrics.RecordsLoaded.Inc()
			}
		}

		s.logger.Debug("processed chunk",
			logger.String("batch_id", batchID),
			logger.Int("from", offset),
			logger.Int("to", end),
		)
	}

	report.GeneratedAt = time.Now().UTC()

	duration := time.Since(start)
	if s.metrics != nil {
		s.metrics.BatchesProcessed.Inc()
		s.metrics.BatchDuration.Observe(duration.Seconds())
	}

	s.logger.Info("batch processed",
		logger.String("batch_id", batchID),
		logger.Int("total", report.Total),
		logger.Int("valid", report.Valid),
		logger.Int("invalid", report.Invalid),
		logger.Int("loaded", len(report.Loaded)),
		logger.Int("failed", len(report.Failures)),
		logger.Duration("duration", duration),
	)

	return report, nil
}

// ProcessAll runs the pipeline over every staged batch in staging order.
func (s *PipelineService) ProcessAll(ctx context.Context) ([]*domain.BatchReport, error) {
	batchIDs, err := s.staging.ListBatchIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}

	reports := make([]*domain.BatchReport, 0, len(batchIDs))
	for _, batchID := range batchIDs {
		report, processErr := s.ProcessBatch(ctx, batchID)
		if processErr != nil {
			return reports, fmt.Errorf("batch %s: %w", batchID, processErr)
		}
		reports = append(reports, report)
	}

	return reports, nil
}

// normalizeAndLoad resolves a transformed record's categorical fields,
// upserts the study, and populates the bridge associations.
func (s *PipelineService) normalizeAndLoad(ctx context.Context, study *domain.TransformedStudy) (int64, error) {
	row := &domain.StudyRow{
		RowID:                 study.RowID,
		BriefTitle:            study.BriefTitle,
		FullTitle:             study.FullTitle,
		StartDate:             study.StartDate,
		OutcomeMeasure:        study.OutcomeMeasure,
		MedicalSubjectHeading: study.MedicalSubjectHeading,
	}

	var orgClassID *int64
	if study.OrgClass != nil {
		id, err := s.lookups.GetOrCreateOrgClass(ctx, *study.OrgClass)
		if err != nil {
			return 0, err
		}
		orgClassID = &id
	}

	if study.OrgName != nil {
		id, err := s.lookups.GetOrCreateOrganization(ctx, *study.OrgName, orgClassID)
		if err != nil {
			return 0, err
		}
		row.OrgID = &id
	}

	if err := s.resolveStudyLookups(ctx, study, row); err != nil {
		return 0, err
	}

	studyID, err := s.studies.UpsertStudy(ctx, row)
	if err != nil {
		return 0, err
	}

	for _, condition := range study.Conditions {
		conditionID, condErr := s.lookups.GetOrCreateCondition(ctx, condition)
		if condErr != nil {
			return 0, condErr
		}
		if linkErr := s.studies.LinkCondition(ctx, studyID, conditionID); linkErr != nil {
			return 0, linkErr
		}
	}

	for _, ageGroup := range study.AgeGroups {
		ageGroupID, ageErr := s.lookups.GetOrCreateStandardAge(ctx, ageGroup)
		if ageErr != nil {
			return 0, ageErr
		}
		if linkErr := s.studies.LinkAgeGroup(ctx, studyID, ageGroupID); linkErr != nil {
			return 0, linkErr
		}
	}

	for _, intervention := range study.Interventions {
		interventionID, intErr := s.lookups.GetOrCreateIntervention(ctx, intervention.Name, intervention.Description)
		if intErr != nil {
			return 0, intErr
		}
		if linkErr := s.studies.LinkIntervention(ctx, studyID, interventionID); linkErr != nil {
			return 0, linkErr
		}
	}

	return studyID, nil
}

// resolveStudyLookups fills the study row's plain lookup foreign keys.
func (s *PipelineService) resolveStudyLookups(ctx context.Context, study *domain.TransformedStudy, row *domain.StudyRow) error {
	resolvers := []struct {
		value *string
		field **int64
		fn    func(context.Context, string) (int64, error)
	}{
		{study.ResponsibleParty, &row.ResponsiblePartyID, s.lookups.GetOrCreateResponsibleParty},
		{study.OverallStatus, &row.OverallStatusID, s.lookups.GetOrCreateOverallStatus},
		{study.PrimaryPurpose, &row.PrimaryPurposeID, s.lookups.GetOrCreatePrimaryPurpose},
		{study.StudyType, &row.StudyTypeID, s.lookups.GetOrCreateStudyType},
		{study.Phase, &row.PhaseID, s.lookups.GetOrCreatePhase},
	}

	for _, r := range resolvers {
		if r.value == nil {
			continue
		}
		id, err := r.fn(ctx, *r.value)
		if err != nil {
			return err
		}
		*r.field = &id
	}

	return nil
}
