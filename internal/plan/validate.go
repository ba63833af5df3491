package plan

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/stagehand/internal/field"
)

//go:embed schema.cue
var schemaCUE string

// Plan error codes (E200-E299)
const (
	ErrCodeRead    = "E200" // plan file unreadable
	ErrCodeParse   = "E201" // malformed YAML or unknown field
	ErrCodeSchema  = "E202" // document rejected by the CUE schema
	ErrCodeInvalid = "E203" // one or more semantic validation errors

	// Semantic validation (E210-E219)
	ErrEmptyStep         = "E210" // step carries no intent
	ErrMultipleIntents   = "E211" // step carries more than one intent
	ErrDuplicateEntity   = "E212" // entity persisted twice
	ErrUnknownEntity     = "E213" // entity used before it is persisted
	ErrUnknownReference  = "E214" // ref names an entity never persisted
	ErrUnsupportedValue  = "E215" // field value is not string, int, bool or null
	ErrDestroyedEntity   = "E216" // entity used after it was destroyed
	ErrUnknownCapability = "E217" // capability name not recognised
	ErrPendingEntity     = "E218" // entity targeted in the unit that creates it
)

// LoadError reports why a plan could not be loaded.
type LoadError struct {
	Code   string
	Path   string
	Err    error
	Errors []ValidationError
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	var b strings.Builder
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "[%s] ", e.Code)
	switch {
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	case len(e.Errors) > 0:
		msgs := make([]string, len(e.Errors))
		for i, ve := range e.Errors {
			msgs[i] = ve.Error()
		}
		b.WriteString(strings.Join(msgs, "; "))
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// ValidationError is one semantic problem in a plan.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// checkSchema validates a decoded YAML document against the embedded schema.
func checkSchema(doc any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile plan schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Plan"))

	v := ctx.Encode(doc)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}

	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s", formatCUEError(err))
	}
	return nil
}

// formatCUEError flattens a CUE error list into "path: message" entries.
func formatCUEError(err error) string {
	var msgs []string
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if path := e.Path(); len(path) > 0 {
			msg = strings.Join(path, ".") + ": " + msg
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks entity references across steps.
// Returns all errors found (does not fail-fast).
func Validate(p *Plan) []ValidationError {
	var errs []ValidationError

	persisted := make(map[string]bool)
	destroyed := make(map[string]bool)
	pending := make(map[string]bool) // persisted in the current unit

	checkFields := func(path string, fields Fields) {
		if _, err := fields.Record(); err != nil {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: err.Error(),
				Code:    ErrUnsupportedValue,
			})
		}
	}

	checkTarget := func(path, entity string) {
		switch {
		case !persisted[entity]:
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("entity %q is not persisted by an earlier step", entity),
				Code:    ErrUnknownEntity,
			})
		case pending[entity]:
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("entity %q is created in this unit of work; add a flush step first", entity),
				Code:    ErrPendingEntity,
			})
		case destroyed[entity]:
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("entity %q was destroyed by an earlier step", entity),
				Code:    ErrDestroyedEntity,
			})
		}
	}

	for i, step := range p.Steps {
		path := fmt.Sprintf("steps[%d]", i)

		if n := step.count(); n == 0 {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: "step must carry one of persist, update, sync, destroy, procedure, flush",
				Code:    ErrEmptyStep,
			})
			continue
		} else if n > 1 {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("step carries %d intents, want one", n),
				Code:    ErrMultipleIntents,
			})
			continue
		}

		switch step.Kind() {
		case KindPersist:
			ps := step.Persist
			if persisted[ps.Entity] {
				errs = append(errs, ValidationError{
					Field:   path + ".persist.entity",
					Message: fmt.Sprintf("entity %q is already persisted", ps.Entity),
					Code:    ErrDuplicateEntity,
				})
			}
			for _, c := range ps.Capabilities {
				if c != "auditable" && c != "soft-deletable" {
					errs = append(errs, ValidationError{
						Field:   path + ".persist.capabilities",
						Message: fmt.Sprintf("unknown capability %q", c),
						Code:    ErrUnknownCapability,
					})
				}
			}
			for col, ref := range ps.Refs {
				if !persisted[ref] {
					errs = append(errs, ValidationError{
						Field:   path + ".persist.refs." + col,
						Message: fmt.Sprintf("entity %q is not persisted by an earlier step", ref),
						Code:    ErrUnknownReference,
					})
				}
			}
			checkFields(path+".persist.fields", ps.Fields)
			persisted[ps.Entity] = true
			pending[ps.Entity] = true
		case KindUpdate:
			checkTarget(path+".update.entity", step.Update.Entity)
			checkFields(path+".update.set", step.Update.Set)
		case KindSync:
			checkTarget(path+".sync.entity", step.Sync.Entity)
			checkFields(path+".sync.set", step.Sync.Set)
		case KindDestroy:
			checkTarget(path+".destroy.entity", step.Destroy.Entity)
			destroyed[step.Destroy.Entity] = true
		case KindFlush:
			clear(pending)
		case KindProcedure:
			for j, arg := range step.Procedure.Args {
				if _, err := field.From(arg); err != nil {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("%s.procedure.args[%d]", path, j),
						Message: err.Error(),
						Code:    ErrUnsupportedValue,
					})
				}
			}
		}
	}

	return errs
}

func (s Step) count() int {
	n := 0
	for _, set := range []bool{
		s.Persist != nil, s.Update != nil, s.Sync != nil,
		s.Destroy != nil, s.Procedure != nil, s.Flush != nil,
	} {
		if set {
			n++
		}
	}
	return n
}
