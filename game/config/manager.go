package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrMapNotFound = errors.New("map not found")
	ErrInvalidMap  = errors.New("invalid map definition")
)

// MapConfig describes one playable map.
type MapConfig struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	GridSize    float64 `json:"grid_size"`
	Background  string  `json:"background,omitempty"`
}

// Validate checks the structural invariants of a map definition.
func (m *MapConfig) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidMap)
	}
	if m.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidMap)
	}
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("%w: dimensions must be positive (%gx%g)", ErrInvalidMap, m.Width, m.Height)
	}
	if m.GridSize <= 0 {
		return fmt.Errorf("%w: grid size must be positive (%g)", ErrInvalidMap, m.GridSize)
	}
	if m.GridSize > m.Width || m.GridSize > m.Height {
		return fmt.Errorf("%w: grid size %g exceeds map dimensions", ErrInvalidMap, m.GridSize)
	}
	return nil
}

// MapInfo is a directory-listing summary of one map.
type MapInfo struct {
	Filename string  `json:"filename"`
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	GridSize float64 `json:"grid_size"`
}

// Manager loads and caches map definitions from a directory.
type Manager struct {
	mapDir     string
	defaultMap *MapConfig
	maps       map[string]*MapConfig
	mu         sync.RWMutex
}

// NewManager creates a map manager rooted at mapDir. An empty mapDir yields a
// manager that only serves the built-in default map.
func NewManager(mapDir string) (*Manager, error) {
	if mapDir != "" {
		if _, err := os.Stat(mapDir); os.IsNotExist(err) {
			return nil, fmt.Errorf("map directory does not exist: %s", mapDir)
		}
	}

	m := &Manager{
		mapDir: mapDir,
		maps:   make(map[string]*MapConfig),
	}
	m.loadDefaultMap()
	return m, nil
}

// loadDefaultMap prefers a map named "default" in the directory, then the
// first valid map, then the built-in fallback.
func (m *Manager) loadDefaultMap() {
	cfg := builtinDefault()
	if m.mapDir != "" {
		if loaded, err := m.LoadMap("default"); err == nil {
			cfg = loaded
		} else if infos, err := m.ListMaps(); err == nil && len(infos) > 0 {
			if loaded, err := m.LoadMap(infos[0].ID); err == nil {
				cfg = loaded
			}
		}
	}
	m.mu.Lock()
	m.defaultMap = cfg
	m.mu.Unlock()
}

// LoadMap loads a map definition by id, consulting the cache first.
func (m *Manager) LoadMap(id string) (*MapConfig, error) {
	m.mu.RLock()
	if cfg, ok := m.maps[id]; ok {
		m.mu.RUnlock()
		return cfg, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring the write lock.
	if cfg, ok := m.maps[id]; ok {
		return cfg, nil
	}

	if m.mapDir == "" {
		return nil, ErrMapNotFound
	}

	filename := id
	if !strings.HasSuffix(filename, ".json") {
		filename += ".json"
	}

	data, err := os.ReadFile(filepath.Join(m.mapDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMapNotFound
		}
		return nil, fmt.Errorf("failed to read map file: %w", err)
	}

	var cfg MapConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMap, err)
	}
	if cfg.ID == "" {
		cfg.ID = id
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m.maps[id] = &cfg
	return &cfg, nil
}

// ListMaps returns a summary of every valid map definition in the directory.
func (m *Manager) ListMaps() ([]*MapInfo, error) {
	if m.mapDir == "" {
		d := m.GetDefault()
		return []*MapInfo{{
			ID:       d.ID,
			Name:     d.Name,
			Width:    d.Width,
			Height:   d.Height,
			GridSize: d.GridSize,
		}}, nil
	}

	entries, err := os.ReadDir(m.mapDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read map directory: %w", err)
	}

	var infos []*MapInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		cfg, err := m.LoadMap(id)
		if err != nil {
			// Skip unparseable or invalid maps in listings.
			continue
		}
		infos = append(infos, &MapInfo{
			Filename: entry.Name(),
			ID:       id,
			Name:     cfg.Name,
			Width:    cfg.Width,
			Height:   cfg.Height,
			GridSize: cfg.GridSize,
		})
	}
	return infos, nil
}

// GetDefault returns the map used when a game does not name one.
func (m *Manager) GetDefault() *MapConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultMap
}

// SetDefault makes the named map the fallback for games without a map id.
func (m *Manager) SetDefault(id string) error {
	cfg, err := m.LoadMap(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultMap = cfg
	return nil
}

// SaveMap validates and writes a map definition to the directory.
func (m *Manager) SaveMap(cfg *MapConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if m.mapDir == "" {
		return errors.New("map manager has no directory configured")
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal map: %w", err)
	}
	path := filepath.Join(m.mapDir, cfg.ID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write map file: %w", err)
	}

	m.mu.Lock()
	m.maps[cfg.ID] = cfg
	m.mu.Unlock()
	return nil
}

// RefreshCache drops all cached maps so subsequent loads reread the
// directory, then re-resolves the default.
func (m *Manager) RefreshCache() {
	m.mu.Lock()
	m.maps = make(map[string]*MapConfig)
	m.mu.Unlock()
	m.loadDefaultMap()
}

// builtinDefault is a plain square battle map.
func builtinDefault() *MapConfig {
	return &MapConfig{
		ID:          "default",
		Name:        "Blank Battle Map",
		Description: "Default 30x30 grid map",
		Width:       1500,
		Height:      1500,
		GridSize:    50,
	}
}
