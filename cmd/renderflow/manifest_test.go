package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/renderflow/types"
)

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifest_YAML(t *testing.T) {
	path := writeManifest(t, "assets.yaml", `
requests:
  - id: cover-001
    asset_type: cover
    prompt: a lighthouse at dusk, oil painting
    filename: covers/001.png
    estimated_unit_cost: 0.10
    priority: 5
  - asset_type: icon
    prompt: minimalist compass glyph
    filename: icons/compass.png
`)

	requests, err := loadManifest(path)
	require.NoError(t, err)
	require.Len(t, requests, 2)

	assert.Equal(t, "cover-001", requests[0].ID)
	assert.Equal(t, types.AssetCover, requests[0].AssetType)
	assert.Equal(t, "covers/001.png", requests[0].Filename)
	assert.Equal(t, types.AmountFromDollars(0.10), requests[0].EstimatedUnitCost)
	assert.Equal(t, 5, requests[0].Priority)

	// Second entry has no id and no cost: id derives from the filename,
	// the unit cost comes from the built-in price book.
	assert.Equal(t, "icons-compass", requests[1].ID)
	assert.Equal(t, types.AmountFromDollars(0.02), requests[1].EstimatedUnitCost)
}

func TestLoadManifest_JSON(t *testing.T) {
	path := writeManifest(t, "assets.json", `{
  "requests": [
    {"asset_type": "card", "prompt": "ornate tarot card back, gold foil", "filename": "cards/back.png"}
  ]
}`)

	requests, err := loadManifest(path)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "cards-back", requests[0].ID)
	assert.Equal(t, types.AmountFromDollars(0.04), requests[0].EstimatedUnitCost)
}

func TestLoadManifest_DuplicateIDRejected(t *testing.T) {
	path := writeManifest(t, "assets.yaml", `
requests:
  - id: dup
    asset_type: icon
    prompt: first of the duplicate pair
    filename: a.png
  - id: dup
    asset_type: icon
    prompt: second of the duplicate pair
    filename: b.png
`)

	_, err := loadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate request id")
}

func TestLoadManifest_InvalidEntry(t *testing.T) {
	path := writeManifest(t, "assets.yaml", `
requests:
  - asset_type: hologram
    prompt: an asset type nobody prices
    filename: h.png
`)

	_, err := loadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest entry 1")
}

func TestLoadManifest_MissingFile(t *testing.T) {
	_, err := loadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read manifest")
}

func TestIDFromFilename(t *testing.T) {
	assert.Equal(t, "covers-001", idFromFilename("covers/001.png"))
	assert.Equal(t, "hero", idFromFilename("hero.png"))
	assert.Equal(t, "a-b-c", idFromFilename("a/b/c.webp"))
}
