/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package websites manages the static pages under test.
// A website is either a directory containing index.html or a single <name>.html file.
package websites

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/PivotLLM/MacroBench/global"
	"github.com/PivotLLM/MacroBench/logging"
)

const defaultCacheSize = 32

// Corpus is the set of websites found in the websites directory
type Corpus struct {
	dir    string
	logger *logging.Logger
	sites  map[string]global.Website
	order  []string
	cache  *lru.Cache[string, string]
}

// Option configures a Corpus
type Option func(*options)

type options struct {
	cacheSize int
}

// WithCacheSize sets how many page sources are kept in memory
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// Load scans dir for websites
func Load(dir string, logger *logging.Logger, opts ...Option) (*Corpus, error) {
	o := &options{cacheSize: defaultCacheSize}
	for _, opt := range opts {
		opt(o)
	}
	if o.cacheSize <= 0 {
		o.cacheSize = defaultCacheSize
	}

	cache, err := lru.New[string, string](o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create source cache: %w", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve websites directory: %w", err)
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read websites directory: %w", err)
	}

	c := &Corpus{
		dir:    absDir,
		logger: logger,
		sites:  make(map[string]global.Website),
		cache:  cache,
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		var site global.Website
		if entry.IsDir() {
			entryPath := filepath.Join(absDir, name, global.DefaultEntryFile)
			if !global.FileExists(entryPath) {
				logger.Debugf("Skipping website directory without %s: %s", global.DefaultEntryFile, name)
				continue
			}
			site = global.Website{Name: name, EntryPath: entryPath, Dir: filepath.Join(absDir, name)}
		} else {
			ext := strings.ToLower(filepath.Ext(name))
			if ext != ".html" && ext != ".htm" {
				continue
			}
			site = global.Website{
				Name:      strings.TrimSuffix(name, filepath.Ext(name)),
				EntryPath: filepath.Join(absDir, name),
				Dir:       absDir,
			}
		}

		if err := confine(absDir, site.EntryPath); err != nil {
			logger.Warnf("Skipping website %s: %v", site.Name, err)
			continue
		}
		if strings.Contains(site.Name, global.KeySeparator) {
			logger.Warnf("Skipping website %s: name must not contain %q", site.Name, global.KeySeparator)
			continue
		}
		if _, exists := c.sites[site.Name]; exists {
			logger.Warnf("Duplicate website %s ignored: %s", site.Name, site.EntryPath)
			continue
		}
		c.sites[site.Name] = site
		c.order = append(c.order, site.Name)
	}

	sort.Strings(c.order)
	return c, nil
}

// confine rejects entry files that resolve outside the websites directory, e.g. through a symlink
func confine(dir, entryPath string) error {
	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve websites directory: %w", err)
	}
	realEntry, err := filepath.EvalSymlinks(entryPath)
	if err != nil {
		return fmt.Errorf("failed to resolve entry file: %w", err)
	}
	rel, err := filepath.Rel(realDir, realEntry)
	if err != nil {
		return fmt.Errorf("entry file outside websites directory: %w", err)
	}
	_, err = global.ValidatePathWithinDir(realDir, rel)
	return err
}

// Dir returns the absolute websites directory
func (c *Corpus) Dir() string {
	return c.dir
}

// Names returns website names in sorted order
func (c *Corpus) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Get returns a website by name
func (c *Corpus) Get(name string) (global.Website, bool) {
	site, ok := c.sites[name]
	return site, ok
}

// Select returns the named websites in the given order, or all websites if names is empty.
// Unknown names are an error.
func (c *Corpus) Select(names []string) ([]global.Website, error) {
	if len(names) == 0 {
		names = c.order
	}

	var out []global.Website
	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		site, ok := c.sites[name]
		if !ok {
			return nil, fmt.Errorf("unknown website: %s", name)
		}
		seen[name] = true
		out = append(out, site)
	}
	return out, nil
}

// Source returns the full HTML source of a website's entry page
func (c *Corpus) Source(name string) (string, error) {
	if src, ok := c.cache.Get(name); ok {
		return src, nil
	}

	site, ok := c.sites[name]
	if !ok {
		return "", fmt.Errorf("unknown website: %s", name)
	}

	data, err := os.ReadFile(site.EntryPath)
	if err != nil {
		return "", fmt.Errorf("failed to read website source %s: %w", site.EntryPath, err)
	}

	src := string(data)
	c.cache.Add(name, src)
	return src, nil
}
