package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadPolicyHolderDefaultsWhenFileMissing(t *testing.T) {
	holder, err := LoadPolicyHolder(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, WaiverPrecedenceFirstMatch, policy.WaiverPrecedence)
	assert.Equal(t, 4, policy.SubmitConcurrency)
	assert.Equal(t, 10*time.Second, policy.LockTTL)
	require.Len(t, policy.AgingBuckets, 3)
	assert.Nil(t, policy.AgingBuckets[2].MaxDays)
}

func TestLoadPolicyHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := `reconciliation:
  waiverPrecedence: Highest
  submitConcurrency: 8
  lockTTL: 3s
  agingBuckets:
    - label: current
      minDays: 0
      maxDays: 14
    - label: late
      minDays: 15
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feeledger.yml"), []byte(content), 0o600))

	holder, err := LoadPolicyHolder(zap.NewNop(), dir)
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, WaiverPrecedenceHighest, policy.WaiverPrecedence)
	assert.Equal(t, 8, policy.SubmitConcurrency)
	assert.Equal(t, 3*time.Second, policy.LockTTL)
	assert.Equal(t, float64(30), policy.PaymentRateLimit.PerMinute)
	require.Len(t, policy.AgingBuckets, 2)
	require.NotNil(t, policy.AgingBuckets[0].MaxDays)
	assert.Equal(t, 14, *policy.AgingBuckets[0].MaxDays)
}

func TestLoadPolicyHolderRejectsUnknownPrecedence(t *testing.T) {
	dir := t.TempDir()
	content := "reconciliation:\n  waiverPrecedence: newest\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "feeledger.yml"), []byte(content), 0o600))

	_, err := LoadPolicyHolder(zap.NewNop(), dir)
	assert.Error(t, err)
}

func TestValidatePolicyRejectsInvertedBucket(t *testing.T) {
	policy := DefaultPolicy()
	policy.AgingBuckets = []AgingBucket{{Label: "bad", MinDays: 10, MaxDays: intPtr(5)}}
	assert.Error(t, validatePolicy(policy))
}

func TestNilPolicyHolderFallsBackToDefaults(t *testing.T) {
	var holder *PolicyHolder
	assert.Equal(t, DefaultPolicy().SubmitConcurrency, holder.Get().SubmitConcurrency)
}
