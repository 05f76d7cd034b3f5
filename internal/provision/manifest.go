package provision

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// LoadManifest reads recipe overrides from a TOML manifest. Fields absent
// from the file keep their defaults, so a partial manifest only adjusts what
// it names. A missing file yields the default recipe unchanged.
func LoadManifest(path string) (Recipe, error) {
	recipe := DefaultRecipe()
	if path == "" {
		return recipe, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return recipe, nil
		}
		return Recipe{}, fmt.Errorf("read manifest: %w", err)
	}
	if err := toml.Unmarshal(data, &recipe); err != nil {
		return Recipe{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := recipe.Validate(); err != nil {
		return Recipe{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return recipe, nil
}
