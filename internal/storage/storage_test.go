package storage

import (
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyhackingspace/digits/classifier"
	"github.com/happyhackingspace/digits/dataset"
)

func testModel(t *testing.T, labels []int, dim int) *classifier.Model {
	t.Helper()
	lm, err := classifier.NewLabelMap(labels)
	require.NoError(t, err)
	m := classifier.NewModel(lm, dim)
	rng := rand.New(rand.NewPCG(10, 20))
	for c := range lm.Len() {
		for j := range dim {
			m.Weights.Set(c, j, rng.NormFloat64()/3)
		}
		m.Bias.SetVec(c, rng.NormFloat64())
	}
	// Values that only round-trip if encoded exactly.
	m.Weights.Set(0, 0, math.Pi)
	m.Weights.Set(1, 1, -1e-300)
	m.Bias.SetVec(0, 1.0/3)
	return m
}

func probes(n, dim int) [][]float64 {
	rng := rand.New(rand.NewPCG(1, 1))
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, dim)
		for j := range out[i] {
			out[i][j] = float64(rng.IntN(17))
		}
	}
	return out
}

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"model.json", "model.bin"} {
		t.Run(name, func(t *testing.T) {
			m := testModel(t, []int{-2, 0, 3, 9}, dataset.FeatureDim)
			path := filepath.Join(t.TempDir(), name)
			store := NewStore(dataset.FeatureDim)

			require.NoError(t, store.Save(path, m))
			loaded, err := store.Load(path)
			require.NoError(t, err)

			assert.Equal(t, m.ID, loaded.ID)
			assert.True(t, m.CreatedAt.Equal(loaded.CreatedAt))
			assert.Equal(t, m.Labels.Labels(), loaded.Labels.Labels())
			assert.Equal(t, m.Weights.RawMatrix().Data, loaded.Weights.RawMatrix().Data)
			assert.Equal(t, m.Bias.RawVector().Data, loaded.Bias.RawVector().Data)

			before, err := classifier.NewEngine(m)
			require.NoError(t, err)
			after, err := classifier.NewEngine(loaded)
			require.NoError(t, err)
			for _, x := range probes(20, dataset.FeatureDim) {
				p1, err := before.Predict(x)
				require.NoError(t, err)
				p2, err := after.Predict(x)
				require.NoError(t, err)
				assert.Equal(t, p1, p2)
			}
		})
	}
}

func TestLoadDetectsFormatFromContent(t *testing.T) {
	m := testModel(t, []int{0, 1}, 4)
	data, err := Marshal(m, FormatBinary)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := NewStore(4).Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.ID, loaded.ID)
}

func TestFeatureDimMismatch(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatBinary} {
		data, err := Marshal(testModel(t, []int{0, 1}, 3), format)
		require.NoError(t, err)

		_, err = Unmarshal(data, dataset.FeatureDim)
		var sm *SchemaMismatchError
		require.True(t, errors.As(err, &sm), "%s: got %v", format, err)
		assert.Contains(t, sm.Reason, "feature dimension")
	}
}

func TestVersionMismatch(t *testing.T) {
	data, err := Marshal(testModel(t, []int{0, 1}, 2), FormatJSON)
	require.NoError(t, err)
	data = []byte(strings.Replace(string(data), `"version": 1`, `"version": 99`, 1))

	_, err = Unmarshal(data, 2)
	var sm *SchemaMismatchError
	require.True(t, errors.As(err, &sm), "got %v", err)
	assert.Contains(t, sm.Reason, "version")
}

func TestUnrecognizedEncoding(t *testing.T) {
	_, err := Unmarshal([]byte("PK\x03\x04 not a model"), 2)
	var sm *SchemaMismatchError
	assert.True(t, errors.As(err, &sm))
}

func TestTruncatedBinary(t *testing.T) {
	data, err := Marshal(testModel(t, []int{0, 1}, 8), FormatBinary)
	require.NoError(t, err)

	_, err = Unmarshal(data[:len(data)-5], 8)
	assert.Error(t, err)
}

func TestInconsistentArtifact(t *testing.T) {
	data, err := Marshal(testModel(t, []int{0, 1}, 2), FormatJSON)
	require.NoError(t, err)
	data = []byte(strings.Replace(string(data), `"class_count": 2`, `"class_count": 3`, 1))

	_, err = Unmarshal(data, 2)
	var sm *SchemaMismatchError
	assert.True(t, errors.As(err, &sm), "got %v", err)
}

func TestSaveIsAllOrNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	store := NewStore(4)

	good := testModel(t, []int{0, 1}, 4)
	require.NoError(t, store.Save(path, good))
	original, err := os.ReadFile(path)
	require.NoError(t, err)

	bad := testModel(t, []int{0, 1}, 4)
	bad.Bias = nil
	require.Error(t, store.Save(path, bad))

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, current)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files left behind")
}

func TestSaveMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "model.bin")
	err := NewStore(4).Save(path, testModel(t, []int{0, 1}, 4))
	assert.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoadMissing(t *testing.T) {
	_, err := NewStore(4).Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatForPath("a/model.JSON"))
	assert.Equal(t, FormatBinary, FormatForPath("model.bin"))
	assert.Equal(t, FormatBinary, FormatForPath("model"))
}
