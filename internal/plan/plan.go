package plan

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stagehand/internal/field"
	"github.com/roach88/stagehand/internal/model"
)

// Plan is a declarative sequence of units of work.
type Plan struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Strategy    string   `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	Setup       []string `yaml:"setup,omitempty" json:"setup,omitempty"`
	Steps       []Step   `yaml:"steps" json:"steps"`
}

// Step holds exactly one intent.
type Step struct {
	Persist   *PersistStep   `yaml:"persist,omitempty" json:"persist,omitempty"`
	Update    *UpdateStep    `yaml:"update,omitempty" json:"update,omitempty"`
	Sync      *SyncStep      `yaml:"sync,omitempty" json:"sync,omitempty"`
	Destroy   *DestroyStep   `yaml:"destroy,omitempty" json:"destroy,omitempty"`
	Procedure *ProcedureStep `yaml:"procedure,omitempty" json:"procedure,omitempty"`
	Flush     *FlushStep     `yaml:"flush,omitempty" json:"flush,omitempty"`
}

// Step kinds.
const (
	KindPersist   = "persist"
	KindUpdate    = "update"
	KindSync      = "sync"
	KindDestroy   = "destroy"
	KindProcedure = "procedure"
	KindFlush     = "flush"
)

// Kind names the intent the step carries, or "" for an empty step.
func (s Step) Kind() string {
	switch {
	case s.Persist != nil:
		return KindPersist
	case s.Update != nil:
		return KindUpdate
	case s.Sync != nil:
		return KindSync
	case s.Destroy != nil:
		return KindDestroy
	case s.Procedure != nil:
		return KindProcedure
	case s.Flush != nil:
		return KindFlush
	default:
		return ""
	}
}

// Entity returns the entity the step targets, if any.
func (s Step) Entity() string {
	switch {
	case s.Persist != nil:
		return s.Persist.Entity
	case s.Update != nil:
		return s.Update.Entity
	case s.Sync != nil:
		return s.Sync.Entity
	case s.Destroy != nil:
		return s.Destroy.Entity
	default:
		return ""
	}
}

// PersistStep creates a row.
type PersistStep struct {
	Entity       string            `yaml:"entity" json:"entity"`
	Table        string            `yaml:"table" json:"table"`
	Capabilities []string          `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	Fields       Fields            `yaml:"fields,omitempty" json:"fields,omitempty"`
	Refs         map[string]string `yaml:"refs,omitempty" json:"refs,omitempty"`
	Unbound      bool              `yaml:"unbound,omitempty" json:"unbound,omitempty"`
}

// UpdateStep writes every column of an entity's row after applying Set.
type UpdateStep struct {
	Entity  string `yaml:"entity" json:"entity"`
	Set     Fields `yaml:"set,omitempty" json:"set,omitempty"`
	Unbound bool   `yaml:"unbound,omitempty" json:"unbound,omitempty"`
}

// SyncStep applies Set at flush time and writes only what changed.
type SyncStep struct {
	Entity  string `yaml:"entity" json:"entity"`
	Set     Fields `yaml:"set" json:"set"`
	Unbound bool   `yaml:"unbound,omitempty" json:"unbound,omitempty"`
}

// DestroyStep hides or deletes an entity's row.
type DestroyStep struct {
	Entity string `yaml:"entity" json:"entity"`
}

// ProcedureStep runs one SQL statement in the procedure stage.
type ProcedureStep struct {
	SQL  string `yaml:"sql" json:"sql"`
	Args []any  `yaml:"args,omitempty" json:"args,omitempty"`
}

// FlushStep ends the current unit of work.
type FlushStep struct{}

// Fields maps column names to scalar values.
type Fields map[string]any

// Record converts f to field values, ordered by column name.
func (f Fields) Record() (field.Record, error) {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)

	rec := make(field.Record, 0, len(names))
	for _, name := range names {
		v, err := field.From(f[name])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		rec = append(rec, field.F(name, v))
	}
	return rec, nil
}

// Capability folds the capability names into a model.Capability.
func (p *PersistStep) Capability() model.Capability {
	caps := model.Plain
	for _, c := range p.Capabilities {
		switch c {
		case "auditable":
			caps |= model.CapAuditable
		case "soft-deletable":
			caps |= model.CapSoftDeletable
		}
	}
	return caps
}

// Load reads, schema-checks and validates the plan at path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeRead, Path: path, Err: err}
	}
	p, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.Path = path
		}
		return nil, err
	}
	return p, nil
}

// Parse decodes and validates a plan document.
func Parse(data []byte) (*Plan, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Code: ErrCodeParse, Err: err}
	}
	if err := checkSchema(doc); err != nil {
		return nil, &LoadError{Code: ErrCodeSchema, Err: err}
	}

	var p Plan
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&p); err != nil {
		return nil, &LoadError{Code: ErrCodeParse, Err: err}
	}

	if errs := Validate(&p); len(errs) > 0 {
		return nil, &LoadError{Code: ErrCodeInvalid, Errors: errs}
	}
	return &p, nil
}
