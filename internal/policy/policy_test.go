package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_Order(t *testing.T) {
	ps := Defaults()
	require.Len(t, ps, 2)
	assert.Equal(t, NameProminence, ps[0].Name)
	assert.Equal(t, Ranked, ps[0].Ordering)
	assert.Equal(t, NameExhaustive, ps[1].Name)
	assert.Equal(t, Combinatorial, ps[1].Ordering)
}

func TestPrompts_DemandStrictTable(t *testing.T) {
	for _, p := range Defaults() {
		assert.Contains(t, p.Prompt, "`Substance Name` | `Concentration Range` | `Use Case`", p.Name)
		assert.Contains(t, p.Prompt, "Not specified", p.Name)
		assert.NotEqual(t, "", p.Prompt)
	}
	assert.Contains(t, Prominence().Prompt, "introduction")
	assert.Contains(t, Exhaustive().Prompt, "separate row")
}

func TestSelect(t *testing.T) {
	ps, err := Select(Defaults(), []string{"Exhaustive"})
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, NameExhaustive, ps[0].Name)

	ps, err = Select(Defaults(), []string{"exhaustive", "prominence"})
	require.NoError(t, err)
	assert.Equal(t, NameProminence, ps[0].Name, "run order is kept")

	all, err := Select(Defaults(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = Select(Defaults(), []string{"bogus"})
	assert.Error(t, err)
}

func TestLoadFile_OverridesPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policies:\n  exhaustive:\n    prompt: |\n      List everything.\n"), 0o644))

	ps, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, Prominence().Prompt, ps[0].Prompt)
	assert.Equal(t, "List everything.", ps[1].Prompt)
}

func TestLoadFile_UnknownPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policies:\n  summary:\n    prompt: x\n"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown policy")
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policies: [unclosed"), 0o644))
	_, err = LoadFile(path)
	assert.Error(t, err)
}
