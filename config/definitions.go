package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/caseflow/automation"
	"github.com/c360studio/caseflow/phase"
	"github.com/c360studio/caseflow/rule"
	"github.com/c360studio/caseflow/template"
)

// Definition file names inside the definitions directory. Missing files are
// skipped, not errors.
const (
	RulesFile       = "rules.yaml"
	AutomationsFile = "automations.yaml"
	TemplatesFile   = "templates.yaml"
	EscalationsFile = "escalations.yaml"
)

// Definitions holds every declarative artifact loaded from the definitions
// directory.
type Definitions struct {
	Rules       []*rule.Rule
	Automations []*automation.Rule
	Templates   []*template.TaskTemplate
	Escalations map[phase.UserRole][]rule.EscalationLevel
}

// LoadDefinitions reads the YAML definition files under dir. Validation
// happens when the artifacts are registered with their engines, not here.
func LoadDefinitions(dir string) (*Definitions, error) {
	defs := &Definitions{Escalations: make(map[phase.UserRole][]rule.EscalationLevel)}

	if err := loadYAML(filepath.Join(dir, RulesFile), &struct {
		Rules *[]*rule.Rule `yaml:"rules"`
	}{&defs.Rules}); err != nil {
		return nil, err
	}

	if err := loadYAML(filepath.Join(dir, AutomationsFile), &struct {
		Automations *[]*automation.Rule `yaml:"automations"`
	}{&defs.Automations}); err != nil {
		return nil, err
	}

	var templateDTOs []templateDTO
	if err := loadYAML(filepath.Join(dir, TemplatesFile), &struct {
		Templates *[]templateDTO `yaml:"templates"`
	}{&templateDTOs}); err != nil {
		return nil, err
	}
	for i := range templateDTOs {
		t, err := templateDTOs[i].toTemplate()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", TemplatesFile, err)
		}
		defs.Templates = append(defs.Templates, t)
	}

	var escalations []escalationDTO
	if err := loadYAML(filepath.Join(dir, EscalationsFile), &struct {
		Escalations *[]escalationDTO `yaml:"escalations"`
	}{&escalations}); err != nil {
		return nil, err
	}
	for _, e := range escalations {
		defs.Escalations[e.FromRole] = e.Levels
	}

	return defs, nil
}

// loadYAML unmarshals one definition file into out, skipping missing files.
func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// templateDTO is the YAML shape of a task template. Durations are Go
// duration strings converted on load.
type templateDTO struct {
	template.TaskTemplate `yaml:",inline"`

	// DueIn overrides the embedded field with a duration string
	// (e.g., "72h").
	DueIn string `yaml:"due_in"`
}

func (d *templateDTO) toTemplate() (*template.TaskTemplate, error) {
	t := d.TaskTemplate
	if d.DueIn != "" {
		dur, err := time.ParseDuration(d.DueIn)
		if err != nil {
			return nil, fmt.Errorf("template %s: invalid due_in %q: %w", t.ID, d.DueIn, err)
		}
		t.DueIn = dur
	}
	return &t, nil
}

// escalationDTO is the YAML shape of one role's escalation path.
type escalationDTO struct {
	FromRole phase.UserRole         `yaml:"from_role"`
	Levels   []rule.EscalationLevel `yaml:"levels"`
}
