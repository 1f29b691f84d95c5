// Package config manages map definitions for the VTT server.
//
// The config package implements:
//   - Map definition loading from a JSON directory
//   - In-memory caching with thread-safe access
//   - Map validation (dimensions, grid size, identifiers)
//   - A built-in default map used when no directory is configured
//
// Usage:
//
//	maps, err := config.NewManager("maps")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	m, err := maps.LoadMap("dungeon-level-1")
//	if err != nil {
//		m = maps.GetDefault()
//	}
//
// Map definitions are JSON files named {id}.json. The file name (without
// extension) is the map id used by game creation requests.
package config
