// Package dept loads the department inventory that drives the listing pass.
package dept

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Department is one school department with its faculty-listing page. The
// listing URL doubles as the origin for resolving relative links scraped
// from that page.
type Department struct {
	Code           string `yaml:"code" json:"code"`
	Name           string `yaml:"name" json:"name"`
	FacultyListURL string `yaml:"faculty_list_url" json:"faculty_list_url,omitempty"`
}

// Inventory is the full department list.
type Inventory struct {
	Departments []Department `yaml:"departments"`
}

// LoadInventory reads the department inventory from a YAML file.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dept: read inventory %s", path)
	}

	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, eris.Wrap(err, "dept: parse inventory")
	}

	codes := make(map[string]bool, len(inv.Departments))
	for _, d := range inv.Departments {
		if d.Code == "" {
			return nil, eris.New("dept: inventory entry missing code")
		}
		if codes[d.Code] {
			return nil, eris.Errorf("dept: duplicate department code %q", d.Code)
		}
		codes[d.Code] = true
	}

	return &inv, nil
}

// ByCode returns the department with the given code, or nil.
func (i *Inventory) ByCode(code string) *Department {
	for idx := range i.Departments {
		if i.Departments[idx].Code == code {
			return &i.Departments[idx]
		}
	}
	return nil
}

// WithListings returns only the departments that have a faculty-listing URL.
func (i *Inventory) WithListings() []Department {
	var out []Department
	for _, d := range i.Departments {
		if d.FacultyListURL != "" {
			out = append(out, d)
		}
	}
	return out
}
