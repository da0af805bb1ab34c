package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/grounding/pkg/grounding/organism"
)

// OrganismList represents a standalone organism allow-list file
type OrganismList struct {
	Organisms []organism.Organism `yaml:"organisms"`
}

// LoadOrganisms loads an organism allow-list from a YAML file
func LoadOrganisms(path string) (*OrganismList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var list OrganismList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, err
	}

	return &list, nil
}

// AllowList builds the organism allow-list for the configuration. A
// separate organisms file takes precedence over inline organisms, and the
// built-in defaults apply when neither is set.
func (c *AppConfig) AllowList() (*organism.AllowList, error) {
	if c.OrganismsFile != "" {
		list, err := LoadOrganisms(c.OrganismsFile)
		if err != nil {
			return nil, fmt.Errorf("load organisms: %w", err)
		}
		return organism.NewAllowList(list.Organisms), nil
	}
	if len(c.Organisms) > 0 {
		return organism.NewAllowList(c.Organisms), nil
	}
	return organism.DefaultAllowList(), nil
}
