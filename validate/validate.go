// Command validate provides a small CLI that validates map definition JSON
// files in a directory (default "maps"). It checks:
//   - JSON structure and required fields (id, name)
//   - Positive width, height, and grid size
//   - Grid size sanity (fits inside the map, divides it evenly)
//   - Duplicate ids across the directory
package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// MapDefinition mirrors the JSON schema for a map definition.
type MapDefinition struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	GridSize    float64 `json:"grid_size"`
	Background  string  `json:"background"`
}

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	ID     string
	Valid  bool
	Errors []string
}

// validateMap loads and validates a single map definition JSON file.
func validateMap(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to read file: %v", err))
		return result
	}

	var def MapDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Invalid JSON: %v", err))
		return result
	}

	// The file name is the fallback id, matching how the server loads maps.
	if def.ID == "" {
		def.ID = strings.TrimSuffix(result.File, ".json")
	}
	result.ID = def.ID

	if def.Name == "" {
		result.Valid = false
		result.Errors = append(result.Errors, "Missing required field: name")
	}

	if def.Width <= 0 {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("width must be positive, got %g", def.Width))
	}
	if def.Height <= 0 {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("height must be positive, got %g", def.Height))
	}
	if def.GridSize <= 0 {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("grid_size must be positive, got %g", def.GridSize))
	}

	if result.Valid {
		if def.GridSize > def.Width || def.GridSize > def.Height {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("grid_size (%g) exceeds map dimensions (%gx%g)", def.GridSize, def.Width, def.Height))
		} else if !dividesEvenly(def.Width, def.GridSize) || !dividesEvenly(def.Height, def.GridSize) {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("grid_size (%g) does not divide %gx%g into whole cells", def.GridSize, def.Width, def.Height))
		}
	}

	// Add informational data
	if result.Valid {
		cols := int(def.Width / def.GridSize)
		rows := int(def.Height / def.GridSize)
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Name: %s", def.Name))
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Size: %gx%g", def.Width, def.Height))
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Grid: %d x %d cells of %g", cols, rows, def.GridSize))
		if def.Background != "" {
			result.Errors = append(result.Errors, fmt.Sprintf("✓ Background: %s", def.Background))
		}
	}

	return result
}

// dividesEvenly reports whether b divides a into a whole number of cells,
// tolerating float wobble.
func dividesEvenly(a, b float64) bool {
	q := a / b
	return math.Abs(q-math.Round(q)) < 1e-9
}

// main scans the map directory for *.json files and validates each one,
// printing a concise report and exiting with non-zero status if any are
// invalid or share an id.
func main() {
	mapDir := "maps"
	if len(os.Args) > 1 {
		mapDir = os.Args[1]
	}

	files, err := filepath.Glob(filepath.Join(mapDir, "*.json"))
	if err != nil {
		fmt.Printf("Error finding map files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No map files found in %s\n", mapDir)
		os.Exit(1)
	}

	allValid := true
	seen := map[string]string{}
	for _, file := range files {
		result := validateMap(file)

		if result.Valid && result.ID != "" {
			if prev, dup := seen[result.ID]; dup {
				result.Valid = false
				result.Errors = []string{fmt.Sprintf("Duplicate id %q (also in %s)", result.ID, prev)}
			} else {
				seen[result.ID] = result.File
			}
		}

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All map definitions are valid!")
	} else {
		fmt.Println("❌ Some map definitions have errors")
		os.Exit(1)
	}
}
