package staging

import (
	"context"
	"fmt"

	"github.com/trialwell/pipeline/internal/domain"
	"github.com/trialwell/pipeline/internal/logger"
)

// Store is the staging persistence interface needed by the loader.
type Store interface {
	InsertRawStudy(ctx context.Context, study *domain.RawStudy) error
	ExistingRowIDs(ctx context.Context) (map[int64]struct{}, error)
}

// Loader stages a CSV export. With backfill enabled, rows whose row_id is
// already staged are skipped so re-running over the same export is safe.
type Loader struct {
	parser         *Parser
	store          Store
	logger         logger.Logger
	enableBackfill bool
}

// NewLoader creates a loader for one CSV file.
func NewLoader(path string, store Store, log logger.Logger, enableBackfill bool) *Loader {
	return &Loader{
		parser:         NewParser(path),
		store:          store,
		logger:         log,
		enableBackfill: enableBackfill,
	}
}

// Run stages the file and returns the batch id with staged and skipped
// counts.
func (l *Loader) Run(ctx context.Context) (batchID string, staged, skipped int, err error) {
	batchID = l.parser.BatchID()

	existing := map[int64]struct{}{}
	if l.enableBackfill {
		existing, err = l.store.ExistingRowIDs(ctx)
		if err != nil {
			return batchID, 0, 0, fmt.Errorf("load existing row ids: %w", err)
		}
		l.logger.Info("backfill enabled", logger.Int("existing_records", len(existing)))
	}

	err = l.parser.Parse(func(study *domain.RawStudy) error {
		if study.RowID != nil {
			if _, seen := existing[*study.RowID]; seen {
				skipped++
				return nil
			}
		}

		if insertErr := l.store.InsertRawStudy(ctx, study); insertErr != nil {
			return insertErr
		}
		staged++
		return nil
	})
	if err != nil {
		return batchID, staged, skipped, fmt.Errorf("stage csv: %w", err)
	}

	l.logger.Info("csv staged",
		logger.String("batch_id", batchID),
		logger.Int("staged", staged),
		logger.Int("skipped", skipped),
	)

	return batchID, staged, skipped, nil
}
