package report

import (
	"context"
	"errors"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
)

// MultiReporter fans each record out to several reporters. Every child is
// called even when an earlier one fails.
type MultiReporter []Reporter

// RequiresResultToken implements Reporter.
func (m MultiReporter) RequiresResultToken() bool {
	for _, r := range m {
		if r.RequiresResultToken() {
			return true
		}
	}
	return false
}

// Report implements Reporter. Child failures are joined into one
// *models.ReportError.
func (m MultiReporter) Report(ctx context.Context, rec models.EvaluationRecord, resultToken string) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, rec, resultToken); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &models.ReportError{
		ResourceType: rec.ResourceType,
		ResourceID:   rec.ResourceID,
		Err:          errors.Join(errs...),
	}
}
