package models

import (
	"fmt"
	"time"
)

// SessionCredential is a short-lived, region-scoped credential obtained by
// assuming the audit role. It belongs to a single invocation and is never
// persisted and carries no serialisation tags.
type SessionCredential struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
	Expires         time.Time
}

// Expired reports whether the credential is no longer valid at now.
// A zero Expires value is treated as never expiring; the STS broker never
// hands one out.
func (c *SessionCredential) Expired(now time.Time) bool {
	if c == nil {
		return true
	}
	if c.Expires.IsZero() {
		return false
	}
	return !now.Before(c.Expires)
}

// String redacts the secret parts so credentials can appear in log fields.
func (c SessionCredential) String() string {
	return fmt.Sprintf("SessionCredential{AccessKeyID: %s, Region: %s, Expires: %s}",
		redact(c.AccessKeyID), c.Region, c.Expires.UTC().Format(time.RFC3339))
}

func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
