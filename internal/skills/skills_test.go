package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkill(t *testing.T, root, dir, content string) string {
	t.Helper()
	skillDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(skillDir, 0o755))
	p := filepath.Join(skillDir, skillFile)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func skillDoc(name, desc string) string {
	return "---\nname: " + name + "\ndescription: " + desc + "\n---\n\n# " + name + "\n\nSteps.\n"
}

func TestList_BuiltInSkills(t *testing.T) {
	skills := NewLoader("", "").List()

	names := make([]string, 0, len(skills))
	for _, s := range skills {
		names = append(names, s.Name)
		assert.Equal(t, SourceBuiltIn, s.Source)
	}
	assert.Equal(t, []string{"position-sizing", "trade-review"}, names)
}

func TestList_UserSkill(t *testing.T) {
	userDir := t.TempDir()
	p := writeSkill(t, userDir, "test-skill", skillDoc("test-skill", "A test skill"))

	skills := NewLoader(userDir, "", WithoutBuiltIn()).List()
	require.Len(t, skills, 1)
	assert.Equal(t, "test-skill", skills[0].Name)
	assert.Equal(t, "A test skill", skills[0].Description)
	assert.Equal(t, SourceUser, skills[0].Source)
	assert.Equal(t, p, skills[0].Path)
}

func TestList_PriorityOrder(t *testing.T) {
	userDir := t.TempDir()
	projectDir := t.TempDir()
	writeSkill(t, userDir, "shared", skillDoc("shared-skill", "User version"))
	writeSkill(t, projectDir, "shared", skillDoc("shared-skill", "Project version"))
	writeSkill(t, userDir, "own", skillDoc("user-skill", "Only user"))
	writeSkill(t, userDir, "sizing", skillDoc("position-sizing", "My sizing rules"))

	skills := NewLoader(userDir, projectDir).List()

	byName := map[string]Skill{}
	for _, s := range skills {
		byName[s.Name] = s
	}
	require.Len(t, byName, 4)
	assert.Equal(t, "Project version", byName["shared-skill"].Description)
	assert.Equal(t, SourceProject, byName["shared-skill"].Source)
	assert.Equal(t, SourceUser, byName["user-skill"].Source)
	assert.Equal(t, SourceUser, byName["position-sizing"].Source)
	assert.Equal(t, SourceBuiltIn, byName["trade-review"].Source)
}

func TestList_SkipsInvalid(t *testing.T) {
	userDir := t.TempDir()
	writeSkill(t, userDir, "no-frontmatter", "# Invalid Skill\n\nNo frontmatter here.")
	writeSkill(t, userDir, "no-description", "---\nname: half\n---\nbody")
	writeSkill(t, userDir, "bad-yaml", "---\nname: [unclosed\n---\nbody")
	writeSkill(t, userDir, "valid", skillDoc("valid-skill", "Works"))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "stray.md"), []byte("x"), 0o644))

	skills := NewLoader(userDir, filepath.Join(userDir, "missing"), WithoutBuiltIn()).List()
	require.Len(t, skills, 1)
	assert.Equal(t, "valid-skill", skills[0].Name)
}

func TestList_NoDirectories(t *testing.T) {
	assert.Empty(t, NewLoader("", "", WithoutBuiltIn()).List())
}

func TestRead(t *testing.T) {
	projectDir := t.TempDir()
	writeSkill(t, projectDir, "journal", skillDoc("journal", "Write it down"))
	loader := NewLoader("", projectDir)

	body, err := loader.Read("journal")
	require.NoError(t, err)
	assert.Equal(t, "# journal\n\nSteps.\n", body)

	body, err = loader.Read("position-sizing")
	require.NoError(t, err)
	assert.Contains(t, body, "calculate_position_size")

	_, err = loader.Read("nope")
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	meta, body, err := Parse([]byte("\ufeff---\r\nname: crlf\r\ndescription: windows file\r\n---\r\nbody\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "crlf", meta.Name)
	assert.Equal(t, "windows file", meta.Description)
	assert.Equal(t, "body\n", body)

	_, _, err = Parse([]byte("---\nname: x\ndescription: y\n"))
	assert.ErrorIs(t, err, ErrNoFrontmatter)
}
