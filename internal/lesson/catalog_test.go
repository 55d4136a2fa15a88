package lesson

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/roundy-world/lesson-server/internal/infrastructure/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog_Embedded(t *testing.T) {
	c, err := LoadCatalog("", 10, validate.NewValidator("es"))
	require.NoError(t, err)
	require.True(t, c.Len() >= 2)

	sumar, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, "sumar", sumar.EntryPointName)
	assert.Equal(t, 10, sumar.Reward)
	assert.Equal(t, []interface{}{2.0, 3.0}, sumar.TestCases[0].Input)
	assert.Equal(t, 5.0, sumar.TestCases[0].ExpectedOutput)

	assert.Equal(t, 2, c.Next(1))
	last := c.All()[c.Len()-1]
	assert.Equal(t, 0, c.Next(last.ID))

	for i := 1; i < c.Len(); i++ {
		assert.Less(t, c.All()[i-1].ID, c.All()[i].ID)
	}
}

func TestLoadCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lessons.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
lessons:
  - id: 1
    title: Doble
    entryPointName: doble
    reward: 3
    testCases:
      - input: [2]
        expectedOutput: 4
      - input: [{a: 1}]
        expectedOutput: {b: [1, 2]}
`), 0o600))

	c, err := LoadCatalog(path, 10, validate.NewValidator("en"))
	require.NoError(t, err)
	l, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, 3, l.Reward)
	assert.Equal(t, []interface{}{map[string]interface{}{"a": 1.0}}, l.TestCases[1].Input)
	assert.Equal(t, map[string]interface{}{"b": []interface{}{1.0, 2.0}}, l.TestCases[1].ExpectedOutput)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"), 10, validate.NewValidator("en"))
	assert.Error(t, err)
}

func TestParseCatalog_Invalid(t *testing.T) {
	cases := map[string]string{
		"duplicated id": `
lessons:
  - {id: 1, title: a, entryPointName: f, testCases: [{input: [], expectedOutput: 1}]}
  - {id: 1, title: b, entryPointName: g, testCases: [{input: [], expectedOutput: 1}]}`,
		"bad entry point": `
lessons:
  - {id: 1, title: a, entryPointName: "no valido", testCases: [{input: [], expectedOutput: 1}]}`,
		"no test cases": `
lessons:
  - {id: 1, title: a, entryPointName: f, testCases: []}`,
		"missing first lesson": `
lessons:
  - {id: 2, title: a, entryPointName: f, testCases: [{input: [], expectedOutput: 1}]}`,
		"non positive id": `
lessons:
  - {id: 0, title: a, entryPointName: f, testCases: [{input: [], expectedOutput: 1}]}`,
		"not yaml": `lessons: [`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc), 10, validate.NewValidator("en"))
			assert.Error(t, err)
		})
	}
}
