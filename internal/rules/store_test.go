package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rules2026 = `version: "2026"
chapters:
  - chapterTitle: "Chapter 17: Budget"
    sectionName: Budget
    elements:
      - element: "Element a - Annual Budgeting for Scope of Project"
        requirementText: The health center develops an annual budget.
        mustAddress: [total budget, revenue sources]
      - element: "Element b - Revenue Sources"
        requirementText: The budget identifies all revenue sources.
`

const rulesDefault = `chapters:
  - chapterTitle: "Chapter 20: Board Composition"
    sectionName: Board Composition
    elements:
      - element: "Element a - Board Member Selection"
        requirementText: The bylaws specify board selection.
`

func TestStore_LoadYearSpecific(t *testing.T) {
	store := NewStore(fstest.MapFS{
		"2026.yaml":    {Data: []byte(rules2026)},
		"default.yaml": {Data: []byte(rulesDefault)},
	}, "test")

	set, err := store.Load("26")
	require.NoError(t, err)
	assert.Equal(t, "2026", set.VersionLabel)
	require.Len(t, set.Chapters, 1)
	assert.Equal(t, "Budget", set.Chapters[0].SectionName)
	assert.Equal(t, 2, set.RequirementCount())
	assert.Equal(t, []string{"total budget", "revenue sources"}, set.Chapters[0].Elements[0].MustAddress)

	set, err = store.Load("2026")
	require.NoError(t, err)
	assert.Equal(t, "2026", set.VersionLabel)
}

func TestStore_FallsBackToDefault(t *testing.T) {
	store := NewStore(fstest.MapFS{
		"2026.yaml":    {Data: []byte(rules2026)},
		"default.yaml": {Data: []byte(rulesDefault)},
	}, "test")

	for _, code := range []string{"25", "", "FY"} {
		set, err := store.Load(code)
		require.NoError(t, err, code)
		assert.Equal(t, DefaultVersion, set.VersionLabel, code)
		assert.Equal(t, "Board Composition", set.Chapters[0].SectionName)
	}
}

func TestStore_Missing(t *testing.T) {
	store := NewStore(fstest.MapFS{"2026.yaml": {Data: []byte(rules2026)}}, "test")

	_, err := store.Load("25")

	var missing *RuleSetMissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "25", missing.YearCode)

	_, err = NewStore(fstest.MapFS{}, "empty").Load("")
	assert.True(t, errors.As(err, &missing))
}

func TestStore_InvalidFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not yaml", "chapters: [unclosed"},
		{"no chapters", "version: x\n"},
		{"chapter without elements", "chapters:\n  - chapterTitle: T\n    sectionName: S\n    elements: []\n"},
		{"element without requirement", "chapters:\n  - chapterTitle: T\n    sectionName: S\n    elements:\n      - element: E\n"},
		{"duplicate sections", "chapters:\n" +
			"  - {chapterTitle: A, sectionName: S, elements: [{element: E, requirementText: R}]}\n" +
			"  - {chapterTitle: B, sectionName: S, elements: [{element: F, requirementText: R}]}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(fstest.MapFS{"default.yaml": {Data: []byte(tt.content)}}, "test")

			_, err := store.Load("")

			var invalid *InvalidRuleSetError
			require.True(t, errors.As(err, &invalid), "got %v", err)
			assert.Contains(t, invalid.File, "default.yaml")
		})
	}
}

func TestStore_JSONFile(t *testing.T) {
	content := `{"chapters":[{"chapterTitle":"Budget","sectionName":"Budget","elements":[{"element":"Element a","requirementText":"R"}]}]}`
	store := NewStore(fstest.MapFS{"2025.json": {Data: []byte(content)}, "default.yml": {Data: []byte(rulesDefault)}}, "test")

	set, err := store.Load("25")
	require.NoError(t, err)
	assert.Equal(t, "2025", set.VersionLabel)

	versions, err := store.Versions()
	require.NoError(t, err)
	assert.Equal(t, []string{"2025", "default"}, versions)
}

func TestNewDirStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"), []byte(rulesDefault), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	store := NewDirStore(dir)
	set, err := store.Load("26")
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion, set.VersionLabel)

	versions, err := store.Versions()
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, versions)
}

func TestDefaultStore(t *testing.T) {
	set, err := DefaultStore().Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultVersion, set.VersionLabel)
	assert.Len(t, set.Chapters, 5)
	assert.Equal(t, 12, set.RequirementCount())

	chapter, ok := set.Chapter("Sliding Fee Discount Program")
	require.True(t, ok)
	assert.Equal(t, "Element b - Sliding Fee Discount Program Policies", chapter.Elements[1].Label)
	assert.NotEmpty(t, chapter.Elements[3].ApplicabilityNote)

	_, ok = set.Chapter("Quality Improvement")
	assert.False(t, ok)
}

func TestYearLabel(t *testing.T) {
	tests := []struct {
		code   string
		want   string
		wantOK bool
	}{
		{"26", "2026", true},
		{"2024", "2024", true},
		{" 25 ", "2025", true},
		{"", "", false},
		{"2", "", false},
		{"FY", "", false},
		{"202", "", false},
	}
	for _, tt := range tests {
		got, ok := YearLabel(tt.code)
		assert.Equal(t, tt.wantOK, ok, tt.code)
		assert.Equal(t, tt.want, got, tt.code)
	}
}
