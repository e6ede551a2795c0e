package plugin

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// DirSource discovers Lua plugins on disk. Each search path may
// contain plugin directories (with a plugin.json manifest, or a bare
// init.lua) and single-file plugins (name.lua).
type DirSource struct {
	paths  []string
	logger *zap.Logger
}

// NewDirSource creates a source over the given search paths.
func NewDirSource(logger *zap.Logger, paths ...string) *DirSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirSource{paths: paths, logger: logger}
}

// Name implements Source.
func (s *DirSource) Name() string {
	return "lua-dir"
}

// Paths returns the configured search paths.
func (s *DirSource) Paths() []string {
	return s.paths
}

// Discover implements Source. Missing search paths are skipped
// silently; a candidate with a broken manifest is logged and skipped.
func (s *DirSource) Discover(ctx context.Context) ([]Factory, error) {
	var factories []Factory
	for _, base := range s.paths {
		if err := ctx.Err(); err != nil {
			return factories, err
		}

		entries, err := os.ReadDir(base)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			s.logger.Warn("plugin path unreadable",
				zap.String("path", base),
				zap.Error(err))
			continue
		}

		for _, entry := range entries {
			manifest, ok := s.candidate(base, entry)
			if !ok {
				continue
			}
			m := manifest
			factories = append(factories, func() (Plugin, error) {
				return NewLuaPlugin(m), nil
			})
		}
	}
	return factories, nil
}

// candidate resolves one directory entry to a manifest, or skips it.
func (s *DirSource) candidate(base string, entry os.DirEntry) (*Manifest, bool) {
	full := filepath.Join(base, entry.Name())

	if entry.IsDir() {
		if _, err := os.Stat(filepath.Join(full, "plugin.json")); err == nil {
			m, err := LoadManifestFromDir(full)
			if err != nil {
				s.logger.Warn("invalid plugin manifest",
					zap.String("path", full),
					zap.Error(err))
				return nil, false
			}
			return m, true
		}

		if _, err := os.Stat(filepath.Join(full, "init.lua")); err == nil {
			m := NewManifestMinimal(entry.Name(), full, "init.lua")
			if err := m.Validate(); err != nil {
				s.logger.Warn("invalid plugin directory name",
					zap.String("path", full),
					zap.Error(err))
				return nil, false
			}
			return m, true
		}
		return nil, false
	}

	if filepath.Ext(entry.Name()) != ".lua" {
		return nil, false
	}
	name := strings.TrimSuffix(entry.Name(), ".lua")
	m := NewManifestMinimal(name, base, entry.Name())
	if err := m.Validate(); err != nil {
		s.logger.Warn("invalid plugin file name",
			zap.String("path", full),
			zap.Error(err))
		return nil, false
	}
	return m, true
}
