package usecase

import (
	"strings"

	"mediaforge/internal/domain/model"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// StyleCatalog is the immutable preset table loaded at startup.
type StyleCatalog struct {
	byID map[string]model.StylePreset
}

func NewStyleCatalog(presets []model.StylePreset) StyleCatalog {
	m := make(map[string]model.StylePreset, len(presets))
	for _, p := range presets {
		id := strings.ToLower(strings.TrimSpace(p.ID))
		if id == "" {
			continue
		}
		p.ID = id
		m[id] = p
	}
	return StyleCatalog{byID: m}
}

func (c StyleCatalog) Lookup(id string) (model.StylePreset, bool) {
	p, ok := c.byID[strings.ToLower(strings.TrimSpace(id))]
	return p, ok
}

// Modifier returns the prompt suffix for a preset, or "" for unknown ids.
func (c StyleCatalog) Modifier(id string) string {
	p, _ := c.Lookup(id)
	return p.Modifier
}

// DisplayName returns the preset name, or a title-cased form of the id.
func (c StyleCatalog) DisplayName(id string) string {
	if p, ok := c.Lookup(id); ok && p.Name != "" {
		return p.Name
	}
	return titleFromID(id)
}

func titleFromID(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	return cases.Title(language.English).String(strings.Join(words, " "))
}
