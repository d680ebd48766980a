// Package transformer maps validated staged records into their normalized
// in-memory form: multi-valued strings become ordered sequences, date
// strings become calendar dates, scalar fields pass through unchanged.
package transformer

import (
	"strings"
	"time"

	"github.com/trialwell/pipeline/internal/domain"
	"github.com/trialwell/pipeline/internal/logger"
)

// Date layouts accepted for start_date, most specific first.
var dateLayouts = []string{
	"2006-01-02", // 2021-10-18
	"2006-01",    // 2004-10
	"2006",       // 2022
}

// Transformer converts one valid RawStudy into a TransformedStudy. It is
// total over its input domain: malformed optional fields degrade to absent
// or empty rather than failing.
type Transformer struct {
	logger logger.Logger
}

// New creates a new transformer.
func New(log logger.Logger) *Transformer {
	return &Transformer{logger: log}
}

// TransformStudy builds the normalized representation of a validated record.
// The caller guarantees study.RowID is present (validation rule one).
func (t *Transformer) TransformStudy(study *domain.RawStudy) *domain.TransformedStudy {
	return &domain.TransformedStudy{
		RowID:                 *study.RowID,
		OrgName:               study.OrgName,
		OrgClass:              study.OrgClass,
		ResponsibleParty:      study.ResponsibleParty,
		BriefTitle:            study.BriefTitle,
		FullTitle:             study.FullTitle,
		OverallStatus:         study.OverallStatus,
		StartDate:             t.ParseDate(study.StartDate),
		PrimaryPurpose:        study.PrimaryPurpose,
		StudyType:             study.StudyType,
		Phase:                 study.Phase,
		OutcomeMeasure:        study.OutcomeMeasure,
		MedicalSubjectHeading: study.MedicalSubjectHeading,
		Conditions:            SplitMultiValue(study.Conditions),
		AgeGroups:             splitAgeGroups(study.StandardAge),
		Interventions:         pairInterventions(study.Interventions, study.InterventionDescription),
	}
}

// SplitMultiValue splits a comma-separated string into its cleaned elements.
// Each element is trimmed; elements that trim to empty are dropped. An
// absent or empty input yields an empty sequence.
func SplitMultiValue(value *string) []string {
	if value == nil || *value == "" {
		return []string{}
	}

	parts := strings.Split(*value, ",")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

// ParseDate parses a start_date string into a UTC calendar date. A bare
// year resolves to January 1, a year-month to the first of the month.
// Unparseable content degrades to absent with a warning; absent input is
// absent without one.
func (t *Transformer) ParseDate(value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}

	dateStr := strings.TrimSpace(*value)
	if dateStr == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, dateStr); err == nil {
			parsed = parsed.UTC()
			return &parsed
		}
	}

	t.logger.Warn("could not parse start date", logger.String("start_date", dateStr))
	return nil
}

// splitAgeGroups normalizes the standard_age field. Age groups arrive
// separated by space or underscore (e.g. "ADULT OLDER_ADULT"), so
// underscores become spaces before the whitespace split.
func splitAgeGroups(value *string) []string {
	if value == nil || *value == "" {
		return []string{}
	}

	normalized := strings.ReplaceAll(*value, "_", " ")
	fields := strings.Fields(normalized)
	groups := make([]string, 0, len(fields))
	groups = append(groups, fields...)
	return groups
}

// pairInterventions splits intervention names and descriptions and pairs
// them positionally. Trailing names without a matching description get an
// absent description.
func pairInterventions(names, descriptions *string) []domain.Intervention {
	nameList := SplitMultiValue(names)
	descList := SplitMultiValue(descriptions)

	interventions := make([]domain.Intervention, 0, len(nameList))
	for i, name := range nameList {
		var desc *string
		if i < len(descList) {
			desc = &descList[i]
		}
		interventions = append(interventions, domain.Intervention{Name: name, Description: desc})
	}
	return interventions
}
