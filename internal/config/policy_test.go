package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolicyDefaults(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)

	assert.Equal(t, 7, p.ContradictionSeverityThreshold)
	assert.Equal(t, 0.7, p.PatternConfidenceThreshold)
	assert.Equal(t, 3, p.MaxInvestigationDepth)
	assert.Equal(t, 30*24*time.Hour, p.CacheTTL)
	assert.Equal(t, 100, p.PinnedCapacity)
}

func TestLoadPolicyOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	yaml := `contradiction_severity_threshold: 5
max_investigation_depth: 2
investigation_lease_timeout: 10m
pinned_capacity: 50
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, 5, p.ContradictionSeverityThreshold)
	assert.Equal(t, 2, p.MaxInvestigationDepth)
	assert.Equal(t, 10*time.Minute, p.InvestigationLeaseTimeout)
	assert.Equal(t, 50, p.PinnedCapacity)
	// Untouched fields keep their defaults
	assert.Equal(t, 0.7, p.PatternConfidenceThreshold)
}

func TestLoadPolicyMissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadPolicyMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pinned_capacity: [not a number"), 0o644))

	_, err := LoadPolicy(path)
	assert.Error(t, err)
}
