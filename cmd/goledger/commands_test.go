package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ledgerCSV = `id,type,amount,category,note,date
r1,expense,1200,rent,January rent,2025-01-01
r2,expense,500,food,groceries,2025-01-08
r3,expense,150,food,,2025-01-10
r4,expense,80,fun,cinema,2025-01-12
r5,income,5000,salary,,2025-01-15
r6,expense,50000,other,boat,2025-01-20
bad,expense,-3,food,,2025-01-21
`

const configYAML = `window_days: 30
budgets:
  food: 500
  rent: 1000
log:
  level: error
`

func run(t *testing.T, args ...string) string {
	t.Helper()
	dir := t.TempDir()
	ledger := filepath.Join(dir, "ledger.csv")
	cfg := filepath.Join(dir, "goledger.yaml")
	require.NoError(t, os.WriteFile(ledger, []byte(ledgerCSV), 0o600))
	require.NoError(t, os.WriteFile(cfg, []byte(configYAML), 0o600))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfg, "--file", ledger}, args...))
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestRangeCommand(t *testing.T) {
	out := run(t, "range", "2025-01-08", "2025-01-12")
	assert.Contains(t, out, "2025-01-08")
	assert.Contains(t, out, "2025-01-12")
	assert.NotContains(t, out, "2025-01-01")
	assert.Contains(t, out, "3 records")
}

func TestMonthCommand(t *testing.T) {
	out := run(t, "month", "2025-01")
	assert.Contains(t, out, "6 records")
}

func TestTopCommand(t *testing.T) {
	out := run(t, "top", "-k", "2")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "50000.00")
	assert.Contains(t, lines[1], "1200.00")
}

func TestAnomaliesCommand(t *testing.T) {
	out := run(t, "anomalies")
	assert.Contains(t, out, "Unusually high expense: $50000.00")
	assert.Contains(t, out, "[critical]")
}

func TestBudgetsCommand(t *testing.T) {
	out := run(t, "budgets", "--alerts")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "food"))
	assert.Contains(t, lines[0], "exceeded")
}

func TestTrendCommand(t *testing.T) {
	out := run(t, "trend", "--days")
	assert.Contains(t, out, "2025-01-01 .. 2025-01-20")
	assert.Contains(t, out, "income:   5000.00 total")
	assert.Contains(t, out, "spending: rising")
}

func TestCategoriesCommand(t *testing.T) {
	out := run(t, "categories", "-k", "2")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "other")
	assert.Contains(t, lines[1], "rent")
}

func TestStatsCommand(t *testing.T) {
	out := run(t, "stats")
	assert.Contains(t, out, "expenses")
	assert.Contains(t, out, "n=5")
	assert.Contains(t, out, "  food")
}

func TestExportCommand(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.csv")
	out := run(t, "export", dest)
	assert.Contains(t, out, "wrote 6 records")

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "id,type,amount,category,note,date\n"))
	assert.Contains(t, string(data), "r6,expense,50000.00,other,boat,2025-01-20")
}

func TestBadDateArgument(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "--log-level", "error", "range", "x", "y"})
	assert.Error(t, cmd.Execute())
}
