package reconcile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telcoetl/etlerrors"
	"telcoetl/normalize"
)

func row(kv map[string]string) normalize.Record {
	r := make(normalize.Record, len(kv))
	for k, v := range kv {
		r[k] = normalize.String(v)
	}
	return r
}

func TestMerge_EmptySides(t *testing.T) {
	batch := []normalize.Record{row(map[string]string{"id": "1"})}
	assert.Equal(t, batch, Merge(nil, batch))
	assert.Equal(t, batch, Merge(batch, nil))
	merged := Merge(batch, batch)
	assert.Len(t, merged, 2)
}

func TestDeduplicate_KeepFirst(t *testing.T) {
	rows := []normalize.Record{
		row(map[string]string{"id": "1", "v": "old"}),
		row(map[string]string{"id": "2", "v": "only"}),
		row(map[string]string{"id": "1", "v": "new"}),
	}
	out := Deduplicate(rows, []string{"id"}, KeepFirst)
	require.Len(t, out, 2)
	assert.Equal(t, "old", out[0]["v"].Str())
	assert.Equal(t, "only", out[1]["v"].Str())
}

func TestDeduplicate_KeepLast(t *testing.T) {
	rows := []normalize.Record{
		row(map[string]string{"id": "1", "v": "old"}),
		row(map[string]string{"id": "2", "v": "only"}),
		row(map[string]string{"id": "1", "v": "new"}),
	}
	out := Deduplicate(rows, []string{"id"}, KeepLast)
	require.Len(t, out, 2)
	assert.Equal(t, "only", out[0]["v"].Str())
	assert.Equal(t, "new", out[1]["v"].Str())
}

func TestDeduplicate_NullsCollide(t *testing.T) {
	rows := []normalize.Record{
		{"id": normalize.Null, "v": normalize.String("a")},
		{"id": normalize.Null, "v": normalize.String("b")},
	}
	assert.Len(t, Deduplicate(rows, []string{"id"}, KeepFirst), 1)
}

func TestDeduplicate_CompositeKey(t *testing.T) {
	rows := []normalize.Record{
		row(map[string]string{"abonado": "1", "fecha": "2025-07-01"}),
		row(map[string]string{"abonado": "1", "fecha": "2025-07-15"}),
		row(map[string]string{"abonado": "1", "fecha": "2025-07-01"}),
	}
	assert.Len(t, Deduplicate(rows, []string{"abonado", "fecha"}, KeepFirst), 2)
}

func TestSCDKeepNewest(t *testing.T) {
	rows := []normalize.Record{
		{
			"nombre":               normalize.String("ANA SILVA"),
			"oficina":              normalize.String("VALENCIA"),
			"cargo":                normalize.String("ASESOR"),
			normalize.SourceColumn: normalize.String("Personal Activo 15012025.xlsx"),
		},
		{
			"nombre":               normalize.String("ANA SILVA"),
			"oficina":              normalize.String("VALENCIA"),
			"cargo":                normalize.String("COORDINADOR"),
			normalize.SourceColumn: normalize.String("Personal Activo 15072025.xlsx"),
		},
		{
			"nombre":               normalize.String("ANA SILVA"),
			"oficina":              normalize.String("MARACAY"),
			"cargo":                normalize.String("ASESOR"),
			normalize.SourceColumn: normalize.String("Personal Activo 15012025.xlsx"),
		},
	}
	out := SCDKeepNewest(rows, "nombre", "oficina")
	require.Len(t, out, 2)
	// one row per name+office combination, newest file wins
	assert.Equal(t, "MARACAY", out[0]["oficina"].Str())
	assert.Equal(t, "VALENCIA", out[1]["oficina"].Str())
	assert.Equal(t, "COORDINADOR", out[1]["cargo"].Str())
}

func TestAtomicPersist_ReplacesSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.parquet")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	err := AtomicPersist(path, func(tmp string) error {
		assert.Equal(t, path+".tmp", tmp)
		return os.WriteFile(tmp, []byte("new"), 0o644)
	})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestAtomicPersist_FirstWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.parquet")
	err := AtomicPersist(path, func(tmp string) error {
		return os.WriteFile(tmp, []byte("data"), 0o644)
	})
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestAtomicPersist_WriteFailureKeepsOldSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.parquet")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	err := AtomicPersist(path, func(tmp string) error {
		return assert.AnError
	})
	require.Error(t, err)
	assert.True(t, etlerrors.IsKind(err, etlerrors.KindPersist))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
}
