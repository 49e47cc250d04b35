package usecase

import (
	"strings"

	"mediaforge/internal/domain/model"
)

type Route string

const (
	RouteDefault  Route = "default"
	RouteBrand    Route = "brand"
	RouteTraining Route = "training"
)

// RoutingDecision is recorded on the job (ModelToUse) before the backend call.
type RoutingDecision struct {
	Route Route
	Model string
	Brand *model.Brand
}

// RouteGeneration sends a job to the brand backend only when the selector names
// a brand that is ready and has a model artifact. Everything else, including a
// brand that is missing or still training, goes to the default backend.
func RouteGeneration(sel model.StyleSelector, brand *model.Brand, defaultModel, brandModel string) RoutingDecision {
	if sel.IsBrand() && brand != nil && brand.ID == sel.ID && brand.Usable() {
		return RoutingDecision{Route: RouteBrand, Model: brandModel, Brand: brand}
	}
	return RoutingDecision{Route: RouteDefault, Model: defaultModel, Brand: brand}
}

// BuildGenerationPrompt appends the preset modifier for default-backend jobs,
// or the brand palette and style for brand-backend jobs.
func BuildGenerationPrompt(prompt string, sel model.StyleSelector, decision RoutingDecision, styles StyleCatalog) string {
	prompt = strings.TrimSpace(prompt)

	if decision.Route == RouteBrand && decision.Brand != nil {
		out := prompt
		if hexes := decision.Brand.ColorHexes(); len(hexes) > 0 {
			out += ", incorporating brand colors " + strings.Join(hexes, ", ")
		}
		if decision.Brand.Style != "" {
			out += ", in " + decision.Brand.Style + " style"
		}
		return out
	}

	var modifier string
	if !sel.IsBrand() {
		modifier = styles.Modifier(sel.ID)
	}
	if modifier == "" {
		return prompt
	}
	return prompt + ". " + modifier
}
