package course

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog_Loads(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.True(t, c.Len() > 10)
	for _, id := range []ModuleID{
		"welcome", "html-css", "javascript", "react-basics", "prompting-advanced",
		"v0", "claude", "asset-gen", "supabase", "api", "auth", "project-portfolio",
	} {
		assert.True(t, c.Contains(id), "missing module %s", id)
	}

	assert.Equal(t, 0, c.Position("welcome"))
	assert.Equal(t, -1, c.Position("nope"))

	m, ok := c.Module("html-css")
	require.True(t, ok)
	assert.Equal(t, 35, m.TotalPoints())

	ch, ok := c.Chapter("html-css", "layout")
	require.True(t, ok)
	assert.Equal(t, 20, ch.Points)
	assert.True(t, ch.HasTask())

	_, ok = c.Chapter("html-css", "missing")
	assert.False(t, ok)
	_, ok = c.Chapter("missing", "layout")
	assert.False(t, ok)
}

func TestParse_RejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "duplicate module",
			yaml: `
modules:
  - id: a
    chapters: [{id: x, points: 1}]
  - id: a
    chapters: [{id: y, points: 1}]
`,
		},
		{
			name: "duplicate chapter",
			yaml: `
modules:
  - id: a
    chapters: [{id: x, points: 1}, {id: x, points: 2}]
`,
		},
		{
			name: "zero points",
			yaml: `
modules:
  - id: a
    chapters: [{id: x, points: 0}]
`,
		},
		{
			name: "unknown field",
			yaml: `
modules:
  - id: a
    colour: red
    chapters: [{id: x, points: 1}]
`,
		},
		{
			name: "empty",
			yaml: `modules: []`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestCatalog_Normalize(t *testing.T) {
	c := MustDefault()

	got := c.Normalize([]ModuleID{"project-portfolio", "html-css", "unknown", "welcome", "html-css"})
	assert.Equal(t, []ModuleID{"welcome", "html-css", "project-portfolio"}, got)
}

func TestCatalog_ModulesReturnsCopy(t *testing.T) {
	c := MustDefault()
	mods := c.Modules()
	mods[0].ID = "tampered"

	assert.True(t, c.Contains("welcome"))
	assert.Equal(t, ModuleID("welcome"), c.Modules()[0].ID)
}
