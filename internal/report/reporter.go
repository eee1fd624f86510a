// Package report delivers evaluation records to compliance sinks.
package report

import (
	"context"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
)

// Reporter delivers one evaluation record to a sink.
//
// Report must be safe to call concurrently. A failure is returned as
// *models.ReportError and affects only that record.
type Reporter interface {
	Report(ctx context.Context, rec models.EvaluationRecord, resultToken string) error

	// RequiresResultToken reports whether Report cannot succeed without the
	// invocation's result token. The engine checks it before evaluating
	// anything.
	RequiresResultToken() bool
}
