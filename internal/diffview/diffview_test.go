package diffview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelcards/api/internal/fieldpath"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		before any
		after  any
		want   Kind
	}{
		{"empty list gains an item", []any{}, []any{"x"}, KindAdded},
		{"list emptied", []any{"x"}, []any{}, KindRemoved},
		{"string changed", "A", "B", KindModified},
		{"missing becomes value", nil, "B", KindAdded},
		{"object emptied", map[string]any{"a": 1.0}, map[string]any{}, KindRemoved},
		{"empty string cleared", "A", "", KindRemoved},
		{"false is a value", nil, false, KindAdded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.before, tc.after))
		})
	}
}

func TestBuildResolvesBothSides(t *testing.T) {
	original := fieldpath.Record{"company": "A", "limitations": []any{}}
	edited := fieldpath.Record{"company": "B", "limitations": []any{"x"}}

	report := Build(original, edited, fieldpath.Diff(original, edited))
	require.Len(t, report.Changes, 2)

	assert.Equal(t, "company", report.Changes[0].Path)
	assert.Equal(t, KindModified, report.Changes[0].Kind)
	assert.Equal(t, "A", report.Changes[0].OriginalText)
	assert.Equal(t, "B", report.Changes[0].NewText)

	assert.Equal(t, KindAdded, report.Changes[1].Kind)
	assert.Equal(t, EmptyValue, report.Changes[1].OriginalText)
	assert.Equal(t, "x", report.Changes[1].NewText)

	reverse := Build(edited, original, []string{"limitations"})
	assert.Equal(t, KindRemoved, reverse.Changes[0].Kind)
}

func TestBuildWithoutChanges(t *testing.T) {
	report := Build(fieldpath.Record{}, fieldpath.Record{}, nil)
	assert.True(t, report.Empty())
	assert.Equal(t, NoChangesMessage, report.Message)
	assert.NotNil(t, report.Changes)
	assert.Equal(t, NoChangesMessage, report.Text())
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Regulatory Fda ClearanceNumber", Label("regulatory.fda.clearanceNumber"))
	assert.Equal(t, "Name", Label("name"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "CT, MR", Format([]any{"CT", "MR"}))
	assert.Equal(t, "2 items", Format([]any{map[string]any{"type": "Clinical"}, map[string]any{"type": "Other"}}))
	assert.Equal(t, "1 item", Format([]any{map[string]any{"type": "Clinical"}}))
	assert.Equal(t, "3", Format(3.0))
	assert.Equal(t, "0.5", Format(0.5))
	assert.Equal(t, "true", Format(true))
	assert.Equal(t, EmptyValue, Format(nil))
	assert.Equal(t, "{\n  \"class\": \"IIa\"\n}", Format(map[string]any{"class": "IIa"}))
}

func TestReportText(t *testing.T) {
	report := Build(
		fieldpath.Record{"regulatory": map[string]any{"ce": map[string]any{"class": "IIa"}}},
		fieldpath.Record{"regulatory": map[string]any{"ce": map[string]any{"class": "IIb"}}},
		[]string{"regulatory.ce.class"},
	)
	text := report.Text()
	assert.True(t, strings.HasPrefix(text, "[modified] Regulatory Ce Class: IIa -> IIb"), text)
}
