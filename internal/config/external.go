package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// resolveExternalPath returns path as-is if absolute, otherwise joins it with root.
func resolveExternalPath(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// loadCategoryFiles reads each file in CategoryFiles as a YAML list of
// categories and appends them to c.Categories, rejecting duplicate names.
func (c *Config) loadCategoryFiles(root string) error {
	if len(c.CategoryFiles) == 0 {
		return nil
	}

	sources := make(map[string]string, len(c.Categories))
	for _, cat := range c.Categories {
		sources[cat.Name] = "inline config"
	}

	for _, relPath := range c.CategoryFiles {
		data, err := os.ReadFile(resolveExternalPath(root, relPath))
		if err != nil {
			return fmt.Errorf("load category file %q: %w", relPath, err)
		}

		var categories []CategoryConfig
		if err := yaml.Unmarshal(data, &categories); err != nil {
			return fmt.Errorf("parse category file %q: %w", relPath, err)
		}

		for _, cat := range categories {
			if existing, ok := sources[cat.Name]; ok {
				return fmt.Errorf("category %q defined in both %s and %q", cat.Name, existing, relPath)
			}
			sources[cat.Name] = relPath
			c.Categories = append(c.Categories, cat)
		}
	}
	return nil
}
