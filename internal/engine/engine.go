// Package engine dispatches an invocation to the selected rules and drives
// enumeration, evaluation and reporting for each of them.
package engine

import (
	"context"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
	"github.com/pankaj-dahiya-devops/config-rulesets/internal/report"
)

// Engine is the central orchestration interface.
//
// Engine must not call AWS SDK clients directly; it delegates to the
// credential broker, region lister, enumerators and reporter.
type Engine interface {
	Run(ctx context.Context, event *models.InvocationEvent) (*models.RunSummary, error)
}

// ReporterFactory builds the run's reporter from the home-region credential.
type ReporterFactory func(ctx context.Context, home *models.SessionCredential) (report.Reporter, error)

// DefaultConcurrency bounds how many regions a rule is evaluated in at once
// when Options leaves it unset.
const DefaultConcurrency = 4
