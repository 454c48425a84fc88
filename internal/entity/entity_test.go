package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docflow/constants"
)

func TestFields_KeepServerOrder(t *testing.T) {
	var f Fields
	require.NoError(t, json.Unmarshal([]byte(`{"b":1,"a":"x","c":null}`), &f))
	assert.Equal(t, []string{"b", "a", "c"}, f.Keys())

	f.Set("a", "y")
	f.Set("d", true)
	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, `{"b":1,"a":"y","c":null,"d":true}`, string(out))
}

func TestFields_CloneIsIndependent(t *testing.T) {
	f := NewFields("Name", "Alice")
	c := f.Clone()
	c.Set("Name", "Bob")
	c.Set("Extra", 1)

	v, _ := f.Get("Name")
	assert.Equal(t, "Alice", v)
	assert.Equal(t, 1, f.Len())
}

func TestDisplayValue(t *testing.T) {
	assert.Equal(t, "", DisplayValue(nil))
	assert.Equal(t, "12.5", DisplayValue(12.5))
	assert.Equal(t, "3", DisplayValue(float64(3)))
	assert.Equal(t, "true", DisplayValue(true))
	assert.Equal(t, `["a"]`, DisplayValue([]any{"a"}))
	assert.True(t, ValuesEqual(float64(3), "3"))
	assert.False(t, ValuesEqual(nil, "0"))
}

func TestSchema_JSON(t *testing.T) {
	var s Schema
	require.NoError(t, json.Unmarshal([]byte(`{
		"Date": {"type": "datetime", "format": "DD/MM/YYYY", "examples": ["01/02/2024"]},
		"Total": {"type": "float", "required": true, "nullable": false}
	}`), &s))

	assert.Equal(t, []string{"Date", "Total"}, s.Names())
	date, ok := s.Field("Date")
	require.True(t, ok)
	assert.Equal(t, constants.FieldDate, date.Type)
	assert.True(t, date.Nullable)
	assert.Contains(t, date.Extra, "examples")
	total, _ := s.Field("Total")
	assert.Equal(t, constants.FieldNumber, total.Type)
	assert.False(t, total.Nullable)

	out, err := json.Marshal(s)
	require.NoError(t, err)
	var back Schema
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, s.Names(), back.Names())
	assert.Contains(t, string(out), `"examples":["01/02/2024"]`)
}

func TestSchema_PutRemove(t *testing.T) {
	s := NewSchema(FieldSpec{Name: "A"}, FieldSpec{Name: "B"}, FieldSpec{Name: "A", Required: true})
	assert.Equal(t, []string{"A", "B"}, s.Names())
	a, _ := s.Field("A")
	assert.True(t, a.Required)

	assert.True(t, s.Remove("A"))
	assert.False(t, s.Remove("A"))
	assert.Equal(t, []string{"B"}, s.Names())
}

func TestRow_LabelAndPages(t *testing.T) {
	assert.Equal(t, "Page 2/3", Row{PageNumber: 2, TotalPages: 3}.Label())
	assert.Equal(t, "Page 1/1", Row{}.Label())
	assert.Equal(t, "p. ii", Row{PageLabel: "p. ii"}.Label())
	assert.Equal(t, 1, Row{}.Pages())
	assert.Equal(t, 4, Row{PageCount: 4}.Pages())
}

func TestSnapshot_CloneAndIndex(t *testing.T) {
	s := Snapshot{{FileKey: "a", Warnings: []string{"w"}}, {FileKey: "b"}}
	c := s.Clone()
	c[0].Warnings[0] = "changed"

	assert.Equal(t, "w", s[0].Warnings[0])
	assert.Equal(t, 1, s.Index("b"))
	assert.Equal(t, -1, s.Index("z"))
	assert.Equal(t, []string{"a", "b"}, s.Keys())
	assert.Nil(t, Snapshot(nil).Clone())
}

func TestSummarize(t *testing.T) {
	s := Summarize(Snapshot{{Confidence: 0.5, Warnings: []string{"blurry"}}, {Confidence: 1}})
	assert.Equal(t, Summary{TotalFiles: 2, AverageConfidence: 0.75, WarningsCount: 1}, s)
	assert.Equal(t, Summary{}, Summarize(nil))
}
