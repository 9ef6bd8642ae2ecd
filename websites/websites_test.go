/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package websites

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PivotLLM/MacroBench/logging"
)

func setupCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shop"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shop", "index.html"), []byte("<html><title>Shop</title></html>"), 0644))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blog.html"), []byte("<html>blog</html>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignored"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad__name.html"), []byte("x"), 0644))

	return dir
}

func TestLoad(t *testing.T) {
	dir := setupCorpus(t)

	c, err := Load(dir, logging.NewNop())
	require.NoError(t, err)

	assert.Equal(t, []string{"blog", "shop"}, c.Names())

	shop, ok := c.Get("shop")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "shop", "index.html"), shop.EntryPath)
	assert.Equal(t, filepath.Join(dir, "shop"), shop.Dir)

	_, ok = c.Get("empty")
	assert.False(t, ok)
}

func TestLoadSkipsEntryOutsideDir(t *testing.T) {
	dir := setupCorpus(t)
	outside := filepath.Join(t.TempDir(), "secret.html")
	require.NoError(t, os.WriteFile(outside, []byte("<html>secret</html>"), 0644))
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "leak.html")))

	c, err := Load(dir, logging.NewNop())
	require.NoError(t, err)
	_, ok := c.Get("leak")
	assert.False(t, ok)
	assert.Equal(t, []string{"blog", "shop"}, c.Names())
}

func TestSelect(t *testing.T) {
	c, err := Load(setupCorpus(t), logging.NewNop())
	require.NoError(t, err)

	all, err := c.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	some, err := c.Select([]string{"shop", " shop ", ""})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "shop", some[0].Name)

	_, err = c.Select([]string{"nope"})
	assert.ErrorContains(t, err, "unknown website")
}

func TestSourceIsCached(t *testing.T) {
	dir := setupCorpus(t)
	c, err := Load(dir, logging.NewNop(), WithCacheSize(1))
	require.NoError(t, err)

	src, err := c.Source("shop")
	require.NoError(t, err)
	assert.Contains(t, src, "<title>Shop</title>")

	// Served from cache after the file changes
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shop", "index.html"), []byte("changed"), 0644))
	src, err = c.Source("shop")
	require.NoError(t, err)
	assert.Contains(t, src, "Shop")

	// Evicted by the next site, so the change becomes visible
	_, err = c.Source("blog")
	require.NoError(t, err)
	src, err = c.Source("shop")
	require.NoError(t, err)
	assert.Equal(t, "changed", src)

	_, err = c.Source("missing")
	assert.Error(t, err)
}

func TestLoadMissingDir(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"), logging.NewNop())
	assert.Error(t, err)
}
