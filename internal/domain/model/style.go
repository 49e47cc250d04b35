package model

import "strings"

type StyleKind string

const (
	StyleKindPreset StyleKind = "preset"
	StyleKindBrand  StyleKind = "brand"
)

// StyleSelector is decided once when a generation request is validated and
// never re-derived from the raw request afterwards.
type StyleSelector struct {
	Kind StyleKind `json:"styleKind"`
	ID   string    `json:"styleId"`
}

func PresetStyle(id string) StyleSelector {
	return StyleSelector{Kind: StyleKindPreset, ID: strings.TrimSpace(id)}
}

func BrandStyle(id string) StyleSelector {
	return StyleSelector{Kind: StyleKindBrand, ID: strings.TrimSpace(id)}
}

func (s StyleSelector) IsBrand() bool { return s.Kind == StyleKindBrand }

func (s StyleSelector) Valid() bool {
	switch s.Kind {
	case StyleKindPreset, StyleKindBrand:
		return s.ID != ""
	default:
		return false
	}
}

// StylePreset is a named prompt modifier for the default backend.
type StylePreset struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Modifier string `yaml:"modifier" json:"modifier"`
}
