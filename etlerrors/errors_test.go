package etlerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "file_read", KindFileRead.String())
	assert.Equal(t, "bad_schema", KindBadSchema.String())
	assert.Equal(t, "watermark", KindWatermark.String())
	assert.Equal(t, "file_locked", KindFileLocked.String())
	assert.Equal(t, "persist", KindPersist.String())
	assert.Equal(t, "ambiguous_period", KindAmbiguousPeriod.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("disk gone")
	err := NewFileReadError("cannot open ventas.xlsx", cause)
	assert.Equal(t, "cannot open ventas.xlsx: disk gone", err.Error())

	bare := NewAmbiguousPeriodError("Reporte ENE Q1 12-7-2025.xlsx")
	assert.Equal(t, `filename "Reporte ENE Q1 12-7-2025.xlsx" matches more than one period convention`, bare.Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("sharing violation")
	err := NewFileLockedError("gold/ventas.parquet", cause)
	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestIsMatchesByKind(t *testing.T) {
	a := NewPersistError("rename failed", nil)
	b := NewPersistError("something else entirely", errors.New("boom"))
	assert.ErrorIs(t, a, b)

	other := NewWatermarkError("no snapshot", nil)
	assert.NotErrorIs(t, a, other)
}

func TestKindOf(t *testing.T) {
	err := NewWatermarkError("column fecha missing", nil)
	assert.Equal(t, KindWatermark, KindOf(err))

	wrapped := fmt.Errorf("run aborted: %w", NewBadSchemaError("no header row", nil))
	assert.Equal(t, KindBadSchema, KindOf(wrapped))

	assert.Equal(t, Kind(-1), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(-1), KindOf(nil))
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("persist: %w", NewFileLockedError("gold/cobranza.parquet", nil))
	assert.True(t, IsKind(err, KindFileLocked))
	assert.False(t, IsKind(err, KindPersist))
	assert.False(t, IsKind(errors.New("plain"), KindFileLocked))
}

func TestFileLockedMessage(t *testing.T) {
	err := NewFileLockedError("gold/ordenes_servicio.parquet", nil)
	assert.Contains(t, err.Error(), "locked by another program")
	assert.Contains(t, err.Error(), "gold/ordenes_servicio.parquet")
}
