package strategy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninja0404/pump-bundler/pkg/types"
)

const planYAML = `
volume:
  pattern: waves
  min_delay: 2s
  max_delay: 10s
  min_trade_sol: 0.01
  max_trade_sol: 0.05
  duration: 40m
smart:
  spacing: 5s
  levels:
    - price: 0.00004
      percent: 25
      wallets: all
    - price: 0.00002
      percent: 10
      wallets: dev
auto:
  target_profit_pct: 150
  action: sell-percentage
  percent: 60
  stop_loss_drop_pct: 35
`

func TestParsePlan(t *testing.T) {
	pf, err := ParsePlan([]byte(planYAML))
	require.NoError(t, err)

	require.NotNil(t, pf.Volume)
	assert.Equal(t, PatternWaves, pf.Volume.Pattern)
	assert.Equal(t, 2*time.Second, pf.Volume.MinDelay)
	assert.Equal(t, 40*time.Minute, pf.Volume.Duration)
	assert.Equal(t, RotationSequential, pf.Volume.Rotation)
	assert.Equal(t, 1, pf.Volume.Simultaneous)

	require.NotNil(t, pf.Smart)
	assert.Equal(t, 5*time.Second, pf.Smart.Spacing)
	levels := pf.Smart.sorted()
	assert.Equal(t, "dev", levels[0].Wallets)
	assert.Equal(t, 25.0, levels[1].Percent)

	require.NotNil(t, pf.Auto)
	assert.Equal(t, ActionSellPercent, pf.Auto.Action)
	assert.Equal(t, 35.0, pf.Auto.StopLossDropPct)
	assert.Nil(t, pf.Delay)
}

func TestParsePlanRejectsInvalidSection(t *testing.T) {
	_, err := ParsePlan([]byte("smart:\n  levels: []\n"))
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
	assert.ErrorContains(t, err, "smart")

	_, err = ParsePlan([]byte("other: 1\n"))
	assert.Error(t, err)
}

func TestLoadPlanFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("delay:\n  trigger:\n    kind: time\n    after: 1m\n  delay: 30s\n  percent: 50\n"), 0o600))

	pf, err := LoadPlanFile(path)
	require.NoError(t, err)
	require.NotNil(t, pf.Delay)
	assert.Equal(t, TriggerTime, pf.Delay.Trigger.Kind)
	assert.Equal(t, time.Minute, pf.Delay.Trigger.After)

	_, err = LoadPlanFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
