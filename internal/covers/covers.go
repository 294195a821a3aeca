// Package covers holds the selectable front cover designs.
package covers

import (
	"fmt"
	"os"

	"github.com/Lllllllleong/journalbook/internal/models"
	"gopkg.in/yaml.v3"
)

// Default returns the built-in cover list.
func Default() []models.Cover {
	return []models.Cover{
		{ID: "1", Title: "All feelings. One you", ImageRef: "/journal_covers/Cover1.jpg", IsDefault: true},
		{ID: "2", Title: "Paint your inner world", ImageRef: "/journal_covers/Cover2.png"},
		{ID: "3", Title: "Strong enough to feel.", ImageRef: "/journal_covers/Cover3.jpeg"},
		{ID: "4", Title: "Made for her, by emotions", ImageRef: "/journal_covers/Cover4.jpg"},
	}
}

type file struct {
	Covers []models.Cover `yaml:"covers"`
}

// Load reads a cover list from a YAML file of the form
//
//	covers:
//	  - id: "1"
//	    title: Leather
//	    image_ref: /covers/leather.jpg
//	    is_default: true
func Load(path string) ([]models.Cover, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read covers: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse covers %s: %w", path, err)
	}
	if len(f.Covers) == 0 {
		return nil, fmt.Errorf("covers %s: no covers defined", path)
	}
	seen := make(map[string]bool, len(f.Covers))
	for i, c := range f.Covers {
		if c.ID == "" {
			return nil, fmt.Errorf("covers %s: entry %d has no id", path, i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("covers %s: duplicate id %q", path, c.ID)
		}
		seen[c.ID] = true
	}
	return f.Covers, nil
}

// Initial returns the cover flagged default, else the first one. It returns
// false for an empty list.
func Initial(list []models.Cover) (models.Cover, bool) {
	for _, c := range list {
		if c.IsDefault {
			return c, true
		}
	}
	if len(list) == 0 {
		return models.Cover{}, false
	}
	return list[0], true
}

// Selectable returns the covers that have an image to show.
func Selectable(list []models.Cover) []models.Cover {
	out := make([]models.Cover, 0, len(list))
	for _, c := range list {
		if c.ImageRef != "" {
			out = append(out, c)
		}
	}
	return out
}

// Find looks a cover up by ID among the selectable ones.
func Find(list []models.Cover, id string) (models.Cover, bool) {
	for _, c := range Selectable(list) {
		if c.ID == id {
			return c, true
		}
	}
	return models.Cover{}, false
}
