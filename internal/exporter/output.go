package exporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/avni/avni-server/internal/domain/subject"
)

// ExportEntityType selects one entity of an export: a subject type, program
// or encounter type by UUID. Fields lists static field keys and concept
// UUIDs; an empty list selects everything.
type ExportEntityType struct {
	UUID   string   `json:"uuid" yaml:"uuid"`
	Name   string   `json:"name,omitempty" yaml:"name,omitempty"`
	Fields []string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// ExportNestedOutput is a program or group subject type with the encounter
// types exported under it.
type ExportNestedOutput struct {
	ExportEntityType `yaml:",inline"`
	Encounters       []ExportEntityType `json:"encounters,omitempty" yaml:"encounters,omitempty"`
}

// ExportOutput describes one export: the subject type of the rows, the
// entities that contribute columns and the subject filters.
type ExportOutput struct {
	ExportEntityType `yaml:",inline"`
	Filters          subject.ExportFilters `json:"filters" yaml:"filters,omitempty"`
	Encounters       []ExportEntityType    `json:"encounters,omitempty" yaml:"encounters,omitempty"`
	Programs         []ExportNestedOutput  `json:"programs,omitempty" yaml:"programs,omitempty"`
	Groups           []ExportNestedOutput  `json:"groups,omitempty" yaml:"groups,omitempty"`
	Timezone         string                `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// Validate checks that every entity names a UUID.
func (o ExportOutput) Validate() error {
	if o.UUID == "" {
		return fmt.Errorf("export: subject type uuid is required")
	}
	check := func(kind string, e ExportEntityType) error {
		if e.UUID == "" {
			return fmt.Errorf("export: %s %q has no uuid", kind, e.Name)
		}
		return nil
	}
	for _, e := range o.Encounters {
		if err := check("encounter type", e); err != nil {
			return err
		}
	}
	for _, p := range o.Programs {
		if err := check("program", p.ExportEntityType); err != nil {
			return err
		}
		for _, e := range p.Encounters {
			if err := check("program encounter type", e); err != nil {
				return err
			}
		}
	}
	for _, g := range o.Groups {
		if err := check("group subject type", g.ExportEntityType); err != nil {
			return err
		}
		for _, e := range g.Encounters {
			if err := check("group encounter type", e); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadOutput reads an export definition from a .yaml, .yml or .json file.
func LoadOutput(path string) (ExportOutput, error) {
	var out ExportOutput
	data, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read export definition: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &out)
	default:
		err = yaml.Unmarshal(data, &out)
	}
	if err != nil {
		return out, fmt.Errorf("decode export definition %s: %w", path, err)
	}
	return out, out.Validate()
}
