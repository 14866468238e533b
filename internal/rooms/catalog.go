package rooms

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Cabin describes one joinable room.
type Cabin struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Capacity int    `yaml:"capacity"`
}

type catalogFile struct {
	Cabins []Cabin `yaml:"cabins"`
}

// Catalog is an immutable set of known cabins.
type Catalog struct {
	cabins map[string]Cabin
}

// NewCatalog builds a Catalog from cabin definitions.
//
// Postcondition: Returns an error if any id is empty or duplicated, or a capacity is negative.
func NewCatalog(cabins []Cabin) (*Catalog, error) {
	c := &Catalog{cabins: make(map[string]Cabin, len(cabins))}
	for _, cabin := range cabins {
		id := strings.TrimSpace(cabin.ID)
		if id == "" {
			return nil, fmt.Errorf("cabin id must not be empty")
		}
		if _, dup := c.cabins[id]; dup {
			return nil, fmt.Errorf("duplicate cabin id %q", id)
		}
		if cabin.Capacity < 0 {
			return nil, fmt.Errorf("cabin %q capacity must be >= 0, got %d", id, cabin.Capacity)
		}
		cabin.ID = id
		c.cabins[id] = cabin
	}
	return c, nil
}

// LoadCatalog reads a YAML cabin catalog from path.
//
// Precondition: path must name a readable YAML file with a top-level "cabins" list.
// Postcondition: Returns a valid Catalog or a non-nil error.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cabin catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing cabin catalog %s: %w", path, err)
	}
	return NewCatalog(f.Cabins)
}

// Lookup returns the cabin definition for id.
func (c *Catalog) Lookup(id string) (Cabin, bool) {
	cabin, ok := c.cabins[id]
	return cabin, ok
}

// Len returns the number of catalogued cabins.
func (c *Catalog) Len() int {
	return len(c.cabins)
}
