package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/config-rulesets/internal/models"
)

// ── fakes ─────────────────────────────────────────────────────────────────────

type fakeBroker struct {
	err      error
	lastRole string
}

func (b *fakeBroker) Acquire(_ context.Context, roleARN, region string) (*models.SessionCredential, error) {
	b.lastRole = roleARN
	if b.err != nil {
		return nil, b.err
	}
	return &models.SessionCredential{AccessKeyID: "ASIATEST", Region: region}, nil
}

type fakeRegions struct {
	regions []string
	err     error
}

func (r *fakeRegions) ListRegions(_ context.Context, _ *models.SessionCredential) ([]string, error) {
	return r.regions, r.err
}

func goodChecks() (doctorChecks, *fakeBroker) {
	b := &fakeBroker{}
	return doctorChecks{
		credentials: func(context.Context) error { return nil },
		broker:      b,
		regions:     &fakeRegions{regions: []string{"eu-west-1", "us-east-1"}},
	}, b
}

const auditRole = "arn:aws:iam::111122223333:role/config-audit"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ruleset.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// ── tests ─────────────────────────────────────────────────────────────────────

func TestDoctor_HealthyWithoutRole(t *testing.T) {
	checks, b := goodChecks()
	var buf bytes.Buffer

	result, err := runDoctor(context.Background(), checks, nil, &buf, "table", "audit", doctorOptions{region: "eu-west-1"})
	require.NoError(t, err)

	assert.True(t, result.OverallHealthy)
	assert.True(t, result.AWS.Credentials)
	assert.False(t, result.AWS.Delegation)
	assert.Empty(t, b.lastRole, "no role means no AssumeRole call")
	assert.False(t, result.Journal.Enabled)

	out := buf.String()
	assert.Contains(t, out, "AWS (profile: audit):")
	assert.Contains(t, out, "Audit Role: SKIPPED (no --role)")
	assert.Contains(t, out, "Config file: Not found (defaults)")
}

func TestDoctor_DelegationAndRegions(t *testing.T) {
	checks, b := goodChecks()
	var buf bytes.Buffer

	result, err := runDoctor(context.Background(), checks, nil, &buf, "table", "", doctorOptions{role: auditRole, region: "eu-west-1"})
	require.NoError(t, err)

	assert.True(t, result.OverallHealthy)
	assert.Equal(t, auditRole, b.lastRole)
	assert.True(t, result.AWS.Delegation)
	assert.Equal(t, 2, result.AWS.Regions)
	assert.Contains(t, buf.String(), "Regions API: OK (2 enabled)")
}

func TestDoctor_DelegationFailure(t *testing.T) {
	checks, b := goodChecks()
	b.err = errors.New("AccessDenied: not authorized to perform sts:AssumeRole")

	result, err := runDoctor(context.Background(), checks, nil, &bytes.Buffer{}, "table", "", doctorOptions{role: auditRole})
	require.NoError(t, err)

	assert.False(t, result.OverallHealthy)
	assert.True(t, result.AWS.Credentials)
	assert.False(t, result.AWS.Delegation)
	assert.Contains(t, result.AWS.Error, "AccessDenied")
}

func TestDoctor_RegionListingFailure(t *testing.T) {
	checks, _ := goodChecks()
	checks.regions = &fakeRegions{err: errors.New("UnauthorizedOperation")}

	result, err := runDoctor(context.Background(), checks, nil, &bytes.Buffer{}, "table", "", doctorOptions{role: auditRole})
	require.NoError(t, err)

	assert.False(t, result.OverallHealthy)
	assert.True(t, result.AWS.Delegation)
	assert.False(t, result.AWS.RegionsOK)
}

func TestDoctor_CredentialFailure(t *testing.T) {
	checks, _ := goodChecks()
	checks.credentials = func(context.Context) error { return errors.New("no credentials in chain") }
	var buf bytes.Buffer

	result, err := runDoctor(context.Background(), checks, nil, &buf, "table", "", doctorOptions{role: auditRole})
	require.NoError(t, err)

	assert.False(t, result.OverallHealthy)
	assert.Contains(t, buf.String(), "Credentials: FAIL (no credentials in chain)")
}

func TestDoctor_ChecksConstructionError(t *testing.T) {
	result, err := runDoctor(context.Background(), doctorChecks{}, errors.New("profile not found"), &bytes.Buffer{}, "table", "missing", doctorOptions{})
	require.NoError(t, err)

	assert.False(t, result.OverallHealthy)
	assert.Equal(t, "profile not found", result.AWS.Error)
}

func TestDoctor_InvalidConfig(t *testing.T) {
	checks, _ := goodChecks()
	path := writeConfig(t, "engine:\n  concurrency: 2\nreport:\n  sink: kafka\nrules:\n  NOT_A_RULE:\n    enabled: false\n")
	var buf bytes.Buffer

	result, err := runDoctor(context.Background(), checks, nil, &buf, "table", "", doctorOptions{configPath: path})
	require.NoError(t, err)

	assert.False(t, result.OverallHealthy)
	assert.True(t, result.Config.Present)
	assert.False(t, result.Config.Valid)
	require.Len(t, result.Config.Errors, 2)
	assert.Contains(t, buf.String(), "rules.NOT_A_RULE: unknown rule ID")
}

func TestDoctor_JournalChecked(t *testing.T) {
	checks, _ := goodChecks()
	journal := filepath.Join(t.TempDir(), "journal.db")
	path := writeConfig(t, "report:\n  sink: journal\n  journal_path: "+journal+"\n")

	result, err := runDoctor(context.Background(), checks, nil, &bytes.Buffer{}, "table", "", doctorOptions{configPath: path})
	require.NoError(t, err)

	assert.True(t, result.OverallHealthy)
	assert.True(t, result.Journal.Enabled)
	assert.True(t, result.Journal.OK)
	assert.Equal(t, journal, result.Journal.Path)
}

func TestDoctor_JournalUnwritable(t *testing.T) {
	checks, _ := goodChecks()
	journal := filepath.Join(t.TempDir(), "missing-dir", "journal.db")
	path := writeConfig(t, "report:\n  sink: both\n  journal_path: "+journal+"\n")

	result, err := runDoctor(context.Background(), checks, nil, &bytes.Buffer{}, "table", "", doctorOptions{configPath: path})
	require.NoError(t, err)

	assert.False(t, result.OverallHealthy)
	assert.False(t, result.Journal.OK)
	assert.NotEmpty(t, result.Journal.Error)
}

func TestDoctor_JSONOutput(t *testing.T) {
	checks, _ := goodChecks()
	var buf bytes.Buffer

	_, err := runDoctor(context.Background(), checks, nil, &buf, "json", "audit", doctorOptions{role: auditRole})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	for _, key := range []string{"aws", "config", "journal", "overall_healthy"} {
		assert.Contains(t, decoded, key)
	}
	assert.Equal(t, true, decoded["overall_healthy"])
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}
