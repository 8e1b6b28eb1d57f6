package skills

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapedesk/tape/internal/types"
)

func writeSkill(t *testing.T, path, frontmatter, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	content := "---\n" + frontmatter + "\n---\n" + body
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func skillsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeSkill(t, filepath.Join(dir, "wyckoff.md"),
		"name: wyckoff\ndescription: Wyckoff accumulation phase analysis",
		"## Phases\n\nLook for a selling climax, then an automatic rally.")
	writeSkill(t, filepath.Join(dir, "risk-ladder", "SKILL.md"),
		"name: risk-ladder\ndescription: Scaling into positions across levels",
		"Split the position into three tranches.")
	return dir
}

func TestLoadReadsFlatAndFolderSkills(t *testing.T) {
	loaded, err := Load(skillsDir(t))
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	// sorted by name
	assert.Equal(t, "risk-ladder", loaded[0].Name)
	assert.Equal(t, "wyckoff", loaded[1].Name)
	assert.Equal(t, "Scaling into positions across levels", loaded[0].Description)
	assert.Contains(t, loaded[1].Body, "selling climax")
	assert.NotContains(t, loaded[1].Body, "---", "frontmatter is stripped from the body")
}

func TestLoadMissingDirDisables(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoadIgnoresNonSkillEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("scratch"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty-folder"), 0o755))
	writeSkill(t, filepath.Join(dir, "real.md"), "name: real\ndescription: d", "body")

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "real", loaded[0].Name)
}

func TestLoadNameFallsBackToFilename(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, filepath.Join(dir, "orderflow.md"), "description: reading the tape", "body")
	writeSkill(t, filepath.Join(dir, "folder-skill", "SKILL.md"), "description: d", "body")

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "folder-skill", loaded[0].Name)
	assert.Equal(t, "orderflow", loaded[1].Name)
}

func TestLoadRejectsMalformedFrontmatter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.md"),
		[]byte("no fence at all"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing frontmatter fence")

	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "open.md"),
		[]byte("---\nname: x\ndescription: y\nbody never fenced"), 0o644))

	_, err = Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unterminated frontmatter")
}

func TestNewStageDisabledWhenEmpty(t *testing.T) {
	stage, err := NewStage(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Nil(t, stage)

	stage, err = NewStage(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, stage, "an empty directory contributes nothing")
}

func TestStageDecoratesPrompt(t *testing.T) {
	stage, err := NewStage(skillsDir(t))
	require.NoError(t, err)
	require.NotNil(t, stage)

	prompt := stage.DecoratePrompt("You are a trading copilot.")
	assert.Contains(t, prompt, "You are a trading copilot.")
	assert.Contains(t, prompt, "## Skills")
	assert.Contains(t, prompt, "- risk-ladder: Scaling into positions across levels")
	assert.Contains(t, prompt, "- wyckoff: Wyckoff accumulation phase analysis")
}

func TestReadSkillTool(t *testing.T) {
	stage, err := NewStage(skillsDir(t))
	require.NoError(t, err)
	require.NotNil(t, stage)

	provided := stage.Tools()
	require.Len(t, provided, 1)
	tool := provided[0]
	assert.Equal(t, "read_skill", tool.Name())

	res, err := tool.Execute(context.Background(), nil, json.RawMessage(`{"name":"wyckoff"}`))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "# Skill: wyckoff")
	assert.Contains(t, res.Content, "selling climax")

	_, err = tool.Execute(context.Background(), nil, json.RawMessage(`{"name":"astrology"}`))
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
	assert.Contains(t, err.Error(), "risk-ladder, wyckoff")
}
