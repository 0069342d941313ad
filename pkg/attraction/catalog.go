package attraction

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"kasage/pkg/model"
)

// All is the filter sentinel that shows every category.
const All = "all"

// DefaultColor is used for categories without a configured marker color.
const DefaultColor = "#10b981"

var (
	ErrDuplicateID = errors.New("duplicate attraction id")
	ErrInvalid     = errors.New("invalid attraction")
)

//go:embed attractions.yaml
var embedded []byte

type catalogFile struct {
	Categories  map[string]string  `yaml:"categories"`
	Attractions []model.Attraction `yaml:"attractions"`
}

// Catalog is the static, validated attraction list.
type Catalog struct {
	items      []model.Attraction
	byID       map[int]int
	colors     map[string]string
	categories []string
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(embedded)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse attractions: %w", err)
	}
	return New(f.Attractions, f.Categories)
}

// New validates the attractions and builds the lookup tables.
// Category tags are normalized to lower case.
func New(items []model.Attraction, colors map[string]string) (*Catalog, error) {
	c := &Catalog{
		items:  make([]model.Attraction, 0, len(items)),
		byID:   make(map[int]int, len(items)),
		colors: make(map[string]string, len(colors)),
	}
	for k, v := range colors {
		c.colors[strings.ToLower(k)] = v
	}

	seenCat := make(map[string]bool)
	for _, a := range items {
		a.Category = strings.ToLower(strings.TrimSpace(a.Category))
		if err := validate(a); err != nil {
			return nil, err
		}
		if _, dup := c.byID[a.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, a.ID)
		}
		if a.Color == "" {
			a.Color = c.Color(a.Category)
		}
		c.byID[a.ID] = len(c.items)
		c.items = append(c.items, a)
		if !seenCat[a.Category] {
			seenCat[a.Category] = true
			c.categories = append(c.categories, a.Category)
		}
	}
	return c, nil
}

func validate(a model.Attraction) error {
	switch {
	case strings.TrimSpace(a.Name) == "":
		return fmt.Errorf("%w: id %d has no name", ErrInvalid, a.ID)
	case !a.Location.Valid():
		return fmt.Errorf("%w: id %d has location %v", ErrInvalid, a.ID, a.Location)
	case a.Category == "":
		return fmt.Errorf("%w: id %d has no category", ErrInvalid, a.ID)
	case a.Category == All:
		return fmt.Errorf("%w: id %d uses the reserved category %q", ErrInvalid, a.ID, All)
	}
	return nil
}

// List returns a copy of the attractions in display order.
func (c *Catalog) List() []model.Attraction {
	out := make([]model.Attraction, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of attractions.
func (c *Catalog) Len() int { return len(c.items) }

// Get looks up an attraction by id.
func (c *Catalog) Get(id int) (model.Attraction, bool) {
	i, ok := c.byID[id]
	if !ok {
		return model.Attraction{}, false
	}
	return c.items[i], true
}

// Index returns the card position of the attraction, or -1.
func (c *Catalog) Index(id int) int {
	if i, ok := c.byID[id]; ok {
		return i
	}
	return -1
}

// Categories returns the categories in order of first appearance.
func (c *Catalog) Categories() []string {
	out := make([]string, len(c.categories))
	copy(out, c.categories)
	return out
}

// ValidFilter reports whether f is the All sentinel or a category in use.
func (c *Catalog) ValidFilter(f string) bool {
	if f == All {
		return true
	}
	for _, cat := range c.categories {
		if cat == f {
			return true
		}
	}
	return false
}

// Color returns the marker color of a category.
func (c *Catalog) Color(category string) string {
	if col, ok := c.colors[category]; ok {
		return col
	}
	return DefaultColor
}

// Matches reports whether an attraction passes the filter.
func Matches(a model.Attraction, filter string) bool {
	return filter == All || a.Category == filter
}
