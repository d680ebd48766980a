//nolint:testpackage // Testing internal service requires same package access
package service

import (
	"context"
	"errors"
	"testing"

	"github.com/trialwell/pipeline/internal/domain"
	"github.com/trialwell/pipeline/internal/logger"
)

func strPtr(s string) *string { return &s }

func int64Ptr(i int64) *int64 { return &i }

type mockStagingStore struct {
	insertRawStudyFunc func(ctx context.Context, study *domain.RawStudy) error
	listBatchIDsFunc   func(ctx context.Context) ([]string, error)
	getBatchFunc       func(ctx context.Context, batchID string) ([]*domain.RawStudy, error)
	pingFunc           func(ctx context.Context) error
}

func (m *mockStagingStore) InsertRawStudy(ctx context.Context, study *domain.RawStudy) error {
	if m.insertRawStudyFunc != nil {
		return m.insertRawStudyFunc(ctx, study)
	}
	return nil
}

func (m *mockStagingStore) ListBatchIDs(ctx context.Context) ([]string, error) {
	if m.listBatchIDsFunc != nil {
		return m.listBatchIDsFunc(ctx)
	}
	return nil, nil
}

func (m *mockStagingStore) GetBatch(ctx context.Context, batchID string) ([]*domain.RawStudy, error) {
	if m.getBatchFunc != nil {
		return m.getBatchFunc(ctx, batchID)
	}
	return nil, nil
}

func (m *mockStagingStore) Ping(ctx context.Context) error {
	if m.pingFunc != nil {
		return m.pingFunc(ctx)
	}
	return nil
}

// mockLookupStore hands out sequential ids and remembers every value it was
// asked to resolve, keyed by kind.
type mockLookupStore struct {
	nextID   int64
	resolved map[string][]string
	failOn   string
}

func newMockLookupStore() *mockLookupStore {
	return &mockLookupStore{resolved: make(map[string][]string)}
}

func (m *mockLookupStore) resolve(kind, value string) (int64, error) {
	if m.failOn != "" && m.failOn == kind {
		return 0, errors.New(kind + " unavailable")
	}
	m.resolved[kind] = append(m.resolved[kind], value)
	m.nextID++
	return m.nextID, nil
}

func (m *mockLookupStore) GetOrCreateOrgClass(_ context.Context, v string) (int64, error) {
	return m.resolve("org_class", v)
}

func (m *mockLookupStore) GetOrCreateResponsibleParty(_ context.Context, v string) (int64, error) {
	return m.resolve("responsible_party", v)
}

func (m *mockLookupStore) GetOrCreateOverallStatus(_ context.Context, v string) (int64, error) {
	return m.resolve("overall_status", v)
}

func (m *mockLookupStore) GetOrCreatePrimaryPurpose(_ context.Context, v string) (int64, error) {
	return m.resolve("primary_purpose", v)
}

func (m *mockLookupStore) GetOrCreateStudyType(_ context.Context, v string) (int64, error) {
	return m.resolve("study_type", v)
}

func (m *mockLookupStore) GetOrCreatePhase(_ context.Context, v string) (int64, error) {
	return m.resolve("phase", v)
}

func (m *mockLookupStore) GetOrCreateStandardAge(_ context.Context, v string) (int64, error) {
	return m.resolve("standard_age", v)
}

func (m *mockLookupStore) GetOrCreateCondition(_ context.Context, v string) (int64, error) {
	return m.resolve("condition", v)
}

func (m *mockLookupStore) GetOrCreateOrganization(_ context.Context, name string, _ *int64) (int64, error) {
	return m.resolve("organization", name)
}

func (m *mockLookupStore) GetOrCreateIntervention(_ context.Context, name string, _ *string) (int64, error) {
	return m.resolve("intervention", name)
}

type mockStudyStore struct {
	upsertStudyFunc func(ctx context.Context, row *domain.StudyRow) (int64, error)

	upserted         []*domain.StudyRow
	conditionLinks   [][2]int64
	interventionLink [][2]int64
	ageGroupLinks    [][2]int64
}

func (m *mockStudyStore) UpsertStudy(ctx context.Context, row *domain.StudyRow) (int64, error) {
	m.upserted = append(m.upserted, row)
	if m.upsertStudyFunc != nil {
		return m.upsertStudyFunc(ctx, row)
	}
	return int64(100 + len(m.upserted)), nil
}

func (m *mockStudyStore) LinkCondition(_ context.Context, studyID, conditionID int64) error {
	m.conditionLinks = append(m.conditionLinks, [2]int64{studyID, conditionID})
	return nil
}

func (m *mockStudyStore) LinkIntervention(_ context.Context, studyID, interventionID int64) error {
	m.interventionLink = append(m.interventionLink, [2]int64{studyID, interventionID})
	return nil
}

func (m *mockStudyStore) LinkAgeGroup(_ context.Context, studyID, ageGroupID int64) error {
	m.ageGroupLinks = append(m.ageGroupLinks, [2]int64{studyID, ageGroupID})
	return nil
}

func newTestService(staging *mockStagingStore, lookups *mockLookupStore, studies *mockStudyStore) *PipelineService {
	return NewPipelineService(staging, lookups, studies, nil, logger.NewNop(), 0)
}

func TestPipelineService_StageStudy_AssignsBatchID(t *testing.T) {
	var staged *domain.RawStudy
	staging := &mockStagingStore{
		insertRawStudyFunc: func(_ context.Context, study *domain.RawStudy) error {
			staged = study
			return nil
		},
	}
	svc := newTestService(staging, newMockLookupStore(), &mockStudyStore{})

	study := &domain.RawStudy{RowID: int64Ptr(1), BriefTitle: strPtr("Trial A")}
	if err := svc.StageStudy(context.Background(), study); err != nil {
		t.Fatalf("StageStudy() error = %v", err)
	}

	if staged == nil {
		t.Fatal("study was never written to staging")
	}
	if staged.BatchID == nil || *staged.BatchID == "" {
		t.Error("StageStudy must assign a batch id when none is supplied")
	}
}

func TestPipelineService_StageStudy_KeepsCallerBatchID(t *testing.T) {
	staging := &mockStagingStore{}
	svc := newTestService(staging, newMockLookupStore(), &mockStudyStore{})

	study := &domain.RawStudy{RowID: int64Ptr(1), BriefTitle: strPtr("Trial A"), BatchID: strPtr("caller-batch")}
	if err := svc.StageStudy(context.Background(), study); err != nil {
		t.Fatalf("StageStudy() error = %v", err)
	}

	if *study.BatchID != "caller-batch" {
		t.Errorf("BatchID = %q, want caller-batch", *study.BatchID)
	}
}

func TestPipelineService_StageBatch_SingleBatchID(t *testing.T) {
	var batchIDs []string
	staging := &mockStagingStore{
		insertRawStudyFunc: func(_ context.Context, study *domain.RawStudy) error {
			batchIDs = append(batchIDs, *study.BatchID)
			return nil
		},
	}
	svc := newTestService(staging, newMockLookupStore(), &mockStudyStore{})

	studies := []*domain.RawStudy{
		{RowID: int64Ptr(1), BriefTitle: strPtr("Trial A")},
		{RowID: int64Ptr(2), BriefTitle: strPtr("Trial B")},
		{RowID: int64Ptr(3), BriefTitle: strPtr("Trial C")},
	}

	batchID, staged, err := svc.StageBatch(context.Background(), studies)
	if err != nil {
		t.Fatalf("StageBatch() error = %v", err)
	}
	if staged != 3 {
		t.Errorf("staged = %d, want 3", staged)
	}
	for i, id := range batchIDs {
		if id != batchID {
			t.Errorf("record %d staged under batch %q, want %q", i, id, batchID)
		}
	}
}

func TestPipelineService_StageBatch_StopsOnFirstFailure(t *testing.T) {
	calls := 0
	staging := &mockStagingStore{
		insertRawStudyFunc: func(_ context.Context, _ *domain.RawStudy) error {
			calls++
			if calls == 2 {
				return errors.New("connection reset")
			}
			return nil
		},
	}
	svc := newTestService(staging, newMockLookupStore(), &mockStudyStore{})

	studies := []*domain.RawStudy{
		{RowID: int64Ptr(1), BriefTitle: strPtr("Trial A")},
		{RowID: int64Ptr(2), BriefTitle: strPtr("Trial B")},
		{RowID: int64Ptr(3), BriefTitle: strPtr("Trial C")},
	}

	_, staged, err := svc.StageBatch(context.Background(), studies)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if staged != 1 {
		t.Errorf("staged = %d, want 1 (records before the failure)", staged)
	}
	if calls != 2 {
		t.Errorf("insert calls = %d, want 2 (staging stops at the failure)", calls)
	}
}

func TestPipelineService_ProcessBatch(t *testing.T) {
	staging := &mockStagingStore{
		getBatchFunc: func(_ context.Context, batchID string) ([]*domain.RawStudy, error) {
			return []*domain.RawStudy{
				{
					RowID:      int64Ptr(7),
					BriefTitle: strPtr("Trial A"),
					Conditions: strPtr("Diabetes, Hypertension"),
					StartDate:  strPtr("2019"),
				},
				{RowID: int64Ptr(42)}, // rejected: no titles
			}, nil
		},
	}
	lookups := newMockLookupStore()
	studies := &mockStudyStore{}
	svc := newTestService(staging, lookups, studies)

	report, err := svc.ProcessBatch(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	if report.Total != 2 || report.Valid != 1 || report.Invalid != 1 {
		t.Errorf("report = total %d, valid %d, invalid %d; want 2, 1, 1",
			report.Total, report.Valid, report.Invalid)
	}
	if len(report.Loaded) != 1 {
		t.Fatalf("len(Loaded) = %d, want 1", len(report.Loaded))
	}
	if len(report.Failures) != 0 {
		t.Errorf("Failures = %v, want none", report.Failures)
	}
	if report.GeneratedAt.IsZero() {
		t.Error("report.GeneratedAt must be set")
	}

	// The rejected record must never reach the load stage.
	if len(studies.upserted) != 1 {
		t.Fatalf("upserted %d studies, want 1", len(studies.upserted))
	}
	if studies.upserted[0].RowID != 7 {
		t.Errorf("upserted RowID = %d, want 7", studies.upserted[0].RowID)
	}
	if studies.upserted[0].StartDate == nil || studies.upserted[0].StartDate.Year() != 2019 {
		t.Errorf("upserted StartDate = %v, want year 2019", studies.upserted[0].StartDate)
	}

	wantConditions := []string{"Diabetes", "Hypertension"}
	if got := lookups.resolved["condition"]; len(got) != 2 || got[0] != wantConditions[0] || got[1] != wantConditions[1] {
		t.Errorf("resolved conditions = %v, want %v", got, wantConditions)
	}
	if len(studies.conditionLinks) != 2 {
		t.Errorf("condition links = %d, want 2", len(studies.conditionLinks))
	}
	for _, link := range studies.conditionLinks {
		if link[0] != report.Loaded[0] {
			t.Errorf("condition linked to study %d, want %d", link[0], report.Loaded[0])
		}
	}
}

func TestPipelineService_ProcessBatch_FailureDoesNotAbortSiblings(t *testing.T) {
	staging := &mockStagingStore{
		getBatchFunc: func(_ context.Context, _ string) ([]*domain.RawStudy, error) {
			return []*domain.RawStudy{
				{RowID: int64Ptr(1), BriefTitle: strPtr("Trial A")},
				{RowID: int64Ptr(2), BriefTitle: strPtr("Trial B")},
				{RowID: int64Ptr(3), BriefTitle: strPtr("Trial C")},
			}, nil
		},
	}
	studies := &mockStudyStore{
		upsertStudyFunc: func(_ context.Context, row *domain.StudyRow) (int64, error) {
			if row.RowID == 2 {
				return 0, errors.New("deadlock detected")
			}
			return row.RowID + 100, nil
		},
	}
	svc := newTestService(staging, newMockLookupStore(), studies)

	report, err := svc.ProcessBatch(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	if len(report.Loaded) != 2 {
		t.Errorf("len(Loaded) = %d, want 2 (siblings of a failed record still load)", len(report.Loaded))
	}
	if len(report.Failures) != 1 {
		t.Fatalf("len(Failures) = %d, want 1", len(report.Failures))
	}
	if report.Failures[0].RowID != 2 {
		t.Errorf("failed RowID = %d, want 2", report.Failures[0].RowID)
	}
}

func TestPipelineService_ProcessBatch_LookupFailureRecorded(t *testing.T) {
	staging := &mockStagingStore{
		getBatchFunc: func(_ context.Context, _ string) ([]*domain.RawStudy, error) {
			return []*domain.RawStudy{
				{RowID: int64Ptr(1), BriefTitle: strPtr("Trial A"), Phase: strPtr("PHASE2")},
			}, nil
		},
	}
	lookups := newMockLookupStore()
	lookups.failOn = "phase"
	studies := &mockStudyStore{}
	svc := newTestService(staging, lookups, studies)

	report, err := svc.ProcessBatch(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	if len(report.Failures) != 1 {
		t.Fatalf("len(Failures) = %d, want 1", len(report.Failures))
	}
	if len(studies.upserted) != 0 {
		t.Error("study must not be upserted when a lookup resolution fails")
	}
}

func TestPipelineService_ProcessBatch_FetchError(t *testing.T) {
	staging := &mockStagingStore{
		getBatchFunc: func(_ context.Context, _ string) ([]*domain.RawStudy, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := newTestService(staging, newMockLookupStore(), &mockStudyStore{})

	if _, err := svc.ProcessBatch(context.Background(), "batch-1"); err == nil {
		t.Fatal("expected error when the batch cannot be fetched")
	}
}

func TestPipelineService_ProcessBatch_OrganizationWiring(t *testing.T) {
	staging := &mockStagingStore{
		getBatchFunc: func(_ context.Context, _ string) ([]*domain.RawStudy, error) {
			return []*domain.RawStudy{
				{
					RowID:      int64Ptr(7),
					BriefTitle: strPtr("Trial A"),
					OrgName:    strPtr("Acme Research"),
					OrgClass:   strPtr("INDUSTRY"),
				},
			}, nil
		},
	}
	lookups := newMockLookupStore()
	studies := &mockStudyStore{}
	svc := newTestService(staging, lookups, studies)

	if _, err := svc.ProcessBatch(context.Background(), "batch-1"); err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	if got := lookups.resolved["org_class"]; len(got) != 1 || got[0] != "INDUSTRY" {
		t.Errorf("resolved org_class = %v, want [INDUSTRY]", got)
	}
	if got := lookups.resolved["organization"]; len(got) != 1 || got[0] != "Acme Research" {
		t.Errorf("resolved organization = %v, want [Acme Research]", got)
	}
	if len(studies.upserted) != 1 || studies.upserted[0].OrgID == nil {
		t.Fatal("upserted study must carry the resolved organization id")
	}
}

func TestPipelineService_ProcessAll(t *testing.T) {
	staging := &mockStagingStore{
		listBatchIDsFunc: func(_ context.Context) ([]string, error) {
			return []string{"batch-1", "batch-2"}, nil
		},
		getBatchFunc: func(_ context.Context, batchID string) ([]*domain.RawStudy, error) {
			if batchID == "batch-1" {
				return []*domain.RawStudy{{RowID: int64Ptr(1), BriefTitle: strPtr("Trial A")}}, nil
			}
			return []*domain.RawStudy{{RowID: int64Ptr(2), BriefTitle: strPtr("Trial B")}}, nil
		},
	}
	svc := newTestService(staging, newMockLookupStore(), &mockStudyStore{})

	reports, err := svc.ProcessAll(context.Background())
	if err != nil {
		t.Fatalf("ProcessAll() error = %v", err)
	}

	if len(reports) != 2 {
		t.Fatalf("len(reports) = %d, want 2", len(reports))
	}
	if reports[0].BatchID != "batch-1" || reports[1].BatchID != "batch-2" {
		t.Errorf("batch order = %q, %q; want batch-1, batch-2", reports[0].BatchID, reports[1].BatchID)
	}
}

func TestPipelineService_ProcessBatch_SmallChunks(t *testing.T) {
	staged := []*domain.RawStudy{
		{RowID: int64Ptr(1), BriefTitle: strPtr("Trial A")},
		{RowID: int64Ptr(2), BriefTitle: strPtr("Trial B")},
		{RowID: int64Ptr(3), BriefTitle: strPtr("Trial C")},
	}
	staging := &mockStagingStore{
		getBatchFunc: func(_ context.Context, _ string) ([]*domain.RawStudy, error) {
			return staged, nil
		},
	}
	studies := &mockStudyStore{}
	svc := NewPipelineService(staging, newMockLookupStore(), studies, nil, logger.NewNop(), 2)

	report, err := svc.ProcessBatch(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	// Chunking must not change the outcome.
	if len(report.Loaded) != 3 {
		t.Errorf("len(Loaded) = %d, want 3", len(report.Loaded))
	}
	wantRowIDs := []int64{1, 2, 3}
	for i, row := range studies.upserted {
		if row.RowID != wantRowIDs[i] {
			t.Errorf("upserted[%d].RowID = %d, want %d (staged order preserved)", i, row.RowID, wantRowIDs[i])
		}
	}
}
