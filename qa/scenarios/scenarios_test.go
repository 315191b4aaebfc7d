package scenarios

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/tunnelctl/core/model"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob("testdata/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		sc, err := Load(f)
		require.NoError(t, err, f)
		t.Run(sc.Name, func(t *testing.T) {
			RunScenario(t, sc)
		})
	}
}

func TestActivePumps(t *testing.T) {
	all, err := Scenario{}.ActivePumps()
	require.NoError(t, err)
	assert.Len(t, all, model.NumPumps)

	some, err := Scenario{Pumps: []string{"1.1", "pump 2.1"}}.ActivePumps()
	require.NoError(t, err)
	assert.Equal(t, map[model.PumpID]bool{model.Pump11: true, model.Pump21: true}, some)

	_, err = Scenario{Pumps: []string{"3.1"}}.ActivePumps()
	assert.ErrorIs(t, err, model.ErrUnknownPump)
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load("no-file.yaml")
	assert.Error(t, err)

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(":"), 0o600))
	_, err = Load(bad)
	assert.Error(t, err)

	strategy := filepath.Join(dir, "strategy.yaml")
	require.NoError(t, os.WriteFile(strategy, []byte("name: x\nstrategy: manual\n"), 0o600))
	_, err = Load(strategy)
	assert.ErrorContains(t, err, "unknown strategy")
}
