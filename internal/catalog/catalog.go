// Package catalog holds the dish-type and cuisine lookup tables used to
// build generation prompts. The tables are decoded once from embedded
// JSON at process start and are read-only afterwards.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed dishtypes.json
var dishTypesJSON []byte

// DishType resolves a dish-type identifier to its display name and the
// cooking action used in the prompt narrative.
type DishType struct {
	Name   string `json:"name"`
	Action string `json:"action"`
}

type Catalog struct {
	dishTypes map[string]DishType
	cuisines  map[string]struct{}
}

var supportedCuisines = []string{
	"italian", "chinese", "mexican", "indian", "french",
	"japanese", "thai", "spanish", "greek", "korean",
	"vietnamese", "turkish", "moroccan", "international",
}

// Load decodes the embedded tables. Called once during wiring; the
// returned Catalog must not be mutated.
func Load() (*Catalog, error) {
	dishTypes := map[string]DishType{}
	if err := json.Unmarshal(dishTypesJSON, &dishTypes); err != nil {
		return nil, fmt.Errorf("catalog: decode dish types: %w", err)
	}
	cuisines := make(map[string]struct{}, len(supportedCuisines))
	for _, c := range supportedCuisines {
		cuisines[c] = struct{}{}
	}
	return &Catalog{dishTypes: dishTypes, cuisines: cuisines}, nil
}

// DishType looks up a dish-type id. The empty id maps to the generic
// "dish" entry so callers can omit it.
func (c *Catalog) DishType(id string) (DishType, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		id = "dish"
	}
	dt, ok := c.dishTypes[id]
	return dt, ok
}

// KnownCuisine reports whether the cuisine has a dedicated prompt
// treatment. Unknown cuisines are still accepted; they just get the
// generic treatment.
func (c *Catalog) KnownCuisine(name string) bool {
	_, ok := c.cuisines[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
