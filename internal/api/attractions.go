package api

import (
	"net/http"

	"kasage/pkg/attraction"
	"kasage/pkg/model"
)

// AttractionHandler serves the read-only catalog.
type AttractionHandler struct {
	catalog *attraction.Catalog
}

// NewAttractionHandler creates a new AttractionHandler.
func NewAttractionHandler(c *attraction.Catalog) *AttractionHandler {
	return &AttractionHandler{catalog: c}
}

// CategoryDTO is one filter chip.
type CategoryDTO struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Count int    `json:"count"`
}

// HandleList returns the attractions in carousel order.
func (h *AttractionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	items := h.catalog.List()
	if items == nil {
		items = []model.Attraction{}
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleCategories returns the filter chips, "all" first.
func (h *AttractionHandler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	items := h.catalog.List()
	out := []CategoryDTO{{Name: attraction.All, Color: attraction.DefaultColor, Count: len(items)}}
	for _, name := range h.catalog.Categories() {
		n := 0
		for _, a := range items {
			if attraction.Matches(a, name) {
				n++
			}
		}
		out = append(out, CategoryDTO{Name: name, Color: h.catalog.Color(name), Count: n})
	}
	writeJSON(w, http.StatusOK, out)
}
