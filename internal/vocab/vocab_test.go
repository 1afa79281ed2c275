package vocab

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedDefault(t *testing.T) {
	v, err := Load("")
	require.NoError(t, err)

	assert.NotEmpty(t, v.CompletedWaste)
	assert.NotEmpty(t, v.RawWaste)
	assert.Contains(t, v.CompletedWaste, "Big Mac")
	assert.Contains(t, v.RawWaste, "Reg Bun")
}

func TestLoad_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.json")
	data := `{"completedWaste": ["Big Mac"], "rawWaste": ["Reg Bun", "Mac Sauce"]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	v, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Big Mac"}, v.CompletedWaste)
	assert.Equal(t, []string{"Reg Bun", "Mac Sauce"}, v.RawWaste)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.yaml")
	data := "completedWaste:\n  - Hamburger\nrawWaste:\n  - Pickles\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	v, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hamburger"}, v.CompletedWaste)
	assert.Equal(t, []string{"Pickles"}, v.RawWaste)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("no items", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"completedWaste": [], "rawWaste": []}`), 0o600))
		_, err := Load(path)
		assert.ErrorContains(t, err, "no items")
	})
}

func TestVocabulary_ItemsReturnsCopy(t *testing.T) {
	v, err := Load("")
	require.NoError(t, err)

	items := v.Items(RawWaste)
	items[0] = "mutated"
	assert.NotEqual(t, "mutated", v.Items(RawWaste)[0])
}

func TestCategory_String(t *testing.T) {
	assert.Equal(t, "rawWaste", RawWaste.String())
	assert.Equal(t, "completedWaste", CompletedWaste.String())
}
