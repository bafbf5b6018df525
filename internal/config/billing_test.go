package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillingConfigHolder_ZeroValueFallsBackToDefaults(t *testing.T) {
	var holder *BillingConfigHolder
	assert.Equal(t, DefaultBillingConfig(), holder.Get())
	assert.Equal(t, DefaultBillingConfig(), (&BillingConfigHolder{}).Get())
}

func TestNewBillingConfigHolder_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`billing:
  currency: CHF
  editGraceWindow: 30m
  splitTolerance: 0.02
  descriptionLayout: "2006-01-02"
  flightLockTTL: 10s
  reversalPrefix: "REVERSAL: "
  maxBatchChargeSize: 50
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing.yml"), content, 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	holder, err := NewBillingConfigHolder()
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, "CHF", cfg.Currency)
	assert.Equal(t, 30*time.Minute, cfg.EditGraceWindow)
	assert.InDelta(t, 0.02, cfg.SplitTolerance, 1e-9)
	assert.Equal(t, 50, cfg.MaxBatchChargeSize)
}

func TestValidateBillingConfig(t *testing.T) {
	cfg := DefaultBillingConfig()
	assert.NoError(t, validateBillingConfig(cfg))

	bad := cfg
	bad.SplitTolerance = 1.5
	assert.Error(t, validateBillingConfig(bad))

	bad = cfg
	bad.Currency = " "
	assert.Error(t, validateBillingConfig(bad))

	bad = cfg
	bad.MaxBatchChargeSize = 0
	assert.Error(t, validateBillingConfig(bad))
}

func TestWithDefaults_FillsPartialConfig(t *testing.T) {
	cfg := withDefaults(BillingConfig{Currency: "USD"})
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, time.Hour, cfg.EditGraceWindow)
	assert.Equal(t, 30*time.Second, cfg.FlightLockTTL)
	assert.Equal(t, "REVERSAL: ", cfg.ReversalPrefix)
}
