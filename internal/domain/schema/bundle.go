package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Bundle is the on-disk form of an organisation's schema, used to run imports
// without a database.
type Bundle struct {
	Concepts []*Concept   `yaml:"concepts"`
	Forms    []bundleForm `yaml:"forms"`
}

type bundleForm struct {
	UUID             string          `yaml:"uuid"`
	Name             string          `yaml:"name"`
	FormType         string          `yaml:"formType"`
	DecisionConcepts []string        `yaml:"decisionConcepts,omitempty"`
	Elements         []bundleElement `yaml:"elements"`
	Voided           bool            `yaml:"voided,omitempty"`
	SubjectType      string          `yaml:"subjectType,omitempty"`
	Program          string          `yaml:"program,omitempty"`
	EncounterType    string          `yaml:"encounterType,omitempty"`
}

type bundleElement struct {
	UUID         string  `yaml:"uuid"`
	Name         string  `yaml:"name"`
	DisplayOrder float64 `yaml:"displayOrder"`
	Type         string  `yaml:"type"`
	Concept      string  `yaml:"concept"`
	Group        string  `yaml:"group,omitempty"`
	Voided       bool    `yaml:"voided,omitempty"`
}

// LoadBundle reads a YAML schema bundle from path.
func LoadBundle(path string) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schema bundle: %w", err)
	}
	defer f.Close()
	return ReadBundle(f)
}

// ReadBundle decodes a YAML schema bundle. Form elements and decision
// concepts refer to concepts by name.
func ReadBundle(r io.Reader) (*MemoryStore, error) {
	var b Bundle
	if err := yaml.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode schema bundle: %w", err)
	}

	store := NewMemoryStore()
	byName := make(map[string]*Concept, len(b.Concepts))
	for _, c := range b.Concepts {
		if _, err := ParseDataType(string(c.DataType)); err != nil {
			return nil, fmt.Errorf("concept %q: %w", c.Name, err)
		}
		byName[c.Name] = c
	}
	store.AddConcepts(b.Concepts...)

	for _, bf := range b.Forms {
		ft, err := ParseFormType(bf.FormType)
		if err != nil {
			return nil, fmt.Errorf("form %q: %w", bf.Name, err)
		}
		form := &Form{UUID: bf.UUID, Name: bf.Name, FormType: ft, Voided: bf.Voided}
		for _, be := range bf.Elements {
			c, ok := byName[be.Concept]
			if !ok {
				return nil, fmt.Errorf("form %q element %q: unknown concept %q", bf.Name, be.Name, be.Concept)
			}
			form.Elements = append(form.Elements, &FormElement{
				UUID:         be.UUID,
				Name:         be.Name,
				DisplayOrder: be.DisplayOrder,
				Type:         FormElementType(be.Type),
				Concept:      c,
				GroupUUID:    be.Group,
				Voided:       be.Voided,
			})
		}
		for _, name := range bf.DecisionConcepts {
			c, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("form %q: unknown decision concept %q", bf.Name, name)
			}
			form.DecisionConcepts = append(form.DecisionConcepts, c)
		}
		store.AddForms(form)
		if bf.SubjectType != "" {
			store.AddFormMappings(FormMapping{
				FormUUID:          bf.UUID,
				SubjectTypeUUID:   bf.SubjectType,
				ProgramUUID:       bf.Program,
				EncounterTypeUUID: bf.EncounterType,
			})
		}
	}
	return store, nil
}
