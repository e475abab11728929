package normalize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() Schema {
	return Schema{Columns: []Column{
		{Name: "abonado", Kind: ID, Aliases: []string{"nro abonado", "subscriber"}},
		{Name: "fecha", Kind: Date},
		{Name: "monto", Kind: Amount},
		{Name: "oficina", Kind: Text},
	}}
}

func TestRows_ReindexAndStamp(t *testing.T) {
	n := New(testSchema())
	raw := []map[string]string{{
		" Nro Abonado ": "8400123.0",
		"FECHA":         "15/7/2025",
		"monto":         "1.234,50",
		"oficina":       "  VALENCIA  ",
		"extra":         "dropped",
	}}
	recs := n.Rows(raw, "pagos 15-7-2025.xlsx")
	require.Len(t, recs, 1)
	rec := recs[0]

	assert.Equal(t, "8400123", rec["abonado"].Str())

	got, ok := rec["fecha"].Time()
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC), got)

	d, ok := rec["monto"].Decimal()
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.RequireFromString("1234.50")))

	assert.Equal(t, "VALENCIA", rec["oficina"].Str())
	assert.Equal(t, "pagos 15-7-2025.xlsx", rec[SourceColumn].Str())
	_, hasExtra := rec["extra"]
	assert.False(t, hasExtra)
}

func TestRows_MissingColumnIsNull(t *testing.T) {
	n := New(testSchema())
	recs := n.Rows([]map[string]string{{"abonado": "1"}}, "f.xlsx")
	require.Len(t, recs, 1)
	assert.True(t, recs[0]["fecha"].IsNull())
	assert.True(t, recs[0]["monto"].IsNull())
}

func TestCoerce_NullSentinels(t *testing.T) {
	for _, cell := range []string{"", "nan", "NaN", "None", "NULL", "NaT", "  nan  "} {
		assert.True(t, Coerce(cell, Text).IsNull(), "cell %q", cell)
	}
}

func TestCoerceID_PreservesNonNumeric(t *testing.T) {
	assert.Equal(t, "AB-993", Coerce("AB-993", ID).Str())
	assert.Equal(t, "8400123", Coerce("8.400.123", ID).Str())
	assert.Equal(t, "77", Coerce("77.0", ID).Str())
}

func TestCoerceDate_MixedSerialAndText(t *testing.T) {
	// 45000 days from 1899-12-30 is 2023-03-15
	got, ok := CoerceDate("45000")
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, time.March, 15, 0, 0, 0, 0, time.UTC), got)

	got, ok = CoerceDate("2/1/2025")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC), got)

	_, ok = CoerceDate("12345") // below the serial window
	assert.False(t, ok)

	assert.True(t, Coerce("not a date", Date).IsNull())
}

func TestCoerceAmount_Formats(t *testing.T) {
	cases := map[string]string{
		"1.234,50": "1234.5",
		"1,234.50": "1234.5",
		"$ 1500":   "1500",
		"-20,5":    "-20.5",
		"1234.56":  "1234.56",
	}
	for in, want := range cases {
		v := Coerce(in, Amount)
		d, ok := v.Decimal()
		require.True(t, ok, "amount %q", in)
		assert.True(t, d.Equal(decimal.RequireFromString(want)), "amount %q got %s", in, d)
	}
	assert.True(t, Coerce("sin monto", Amount).IsNull())
}

func TestValueRender(t *testing.T) {
	assert.Equal(t, "", Null.Render())
	assert.Equal(t, "2025-07-15", Time(time.Date(2025, time.July, 15, 0, 0, 0, 0, time.UTC)).Render())
	assert.Equal(t, "12.5", Decimal(decimal.RequireFromString("12.5")).Render())
	assert.Equal(t, "x", String("x").Render())
}

func TestUpper(t *testing.T) {
	assert.Equal(t, "VALENCIA CENTRO", Upper(String("  valencia centro ")).Str())
	assert.True(t, Upper(Null).IsNull())
}
