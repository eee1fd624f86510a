package common

import (
	"context"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
)

// AuditSessionName is the fixed STS session name of every delegated session,
// so the audit role's CloudTrail entries are easy to attribute.
const AuditSessionName = "ComplianceAudit"

// AuditSessionDuration is the fixed lifetime, in seconds, of a delegated
// session. It is the STS minimum.
const AuditSessionDuration int32 = 900

// CredentialBroker exchanges the audit role for a short-lived credential
// scoped to one region.
//
// Failures are returned as *models.DelegationError and are never retried
// here: without a credential the run cannot produce trustworthy verdicts.
type CredentialBroker interface {
	Acquire(ctx context.Context, roleARN, region string) (*models.SessionCredential, error)
}

// RegionLister discovers the regions a rule must be evaluated in.
// Order is provider-defined; callers must not depend on it for correctness.
type RegionLister interface {
	ListRegions(ctx context.Context, cred *models.SessionCredential) ([]string, error)
}
