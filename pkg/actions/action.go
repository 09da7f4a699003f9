package actions

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/sirocco-cloud/sirocco/pkg/cloud"
)

// Action type names.
const (
	TypeMigrate       = "migrate"
	TypeResize        = "resize"
	TypeStart         = "start"
	TypeStop          = "stop"
	TypeServiceState  = "change_nova_service_state"
	TypeVolumeMigrate = "volume_migrate"
	TypeNop           = "nop"
	TypeSleep         = "sleep"
)

// canonical 8-4-4-4-12 form; braces and urn prefixes are rejected.
var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// PreOutcome is the three-way result of a pre-condition check.
type PreOutcome int

const (
	OutcomeProceed PreOutcome = iota
	OutcomeSkip
	OutcomeFail
)

// PreResult carries the outcome plus its reason or error.
type PreResult struct {
	Outcome PreOutcome
	Reason  string
	Err     error
}

// Proceed lets the action execute.
func Proceed() PreResult {
	return PreResult{Outcome: OutcomeProceed}
}

// Skip records the action as succeeded without executing it.
func Skip(format string, args ...any) PreResult {
	return PreResult{Outcome: OutcomeSkip, Reason: fmt.Sprintf(format, args...)}
}

// Fail marks the action failed before execution.
func Fail(err error) PreResult {
	return PreResult{Outcome: OutcomeFail, Err: err}
}

// Context is passed to every hook invocation.
type Context struct {
	Ctx           context.Context
	Cloud         cloud.Adapter
	Params        map[string]any
	MaxRetries    int
	RetryInterval time.Duration
}

// retry wraps a cloud call with the configured retry policy.
func (c *Context) retry(fn func() error) error {
	return cloud.WithRetry(c.Ctx, c.MaxRetries, c.RetryInterval, fn)
}

// Str returns the named string parameter, or "" when absent.
func (c *Context) Str(key string) string {
	if v, ok := c.Params[key].(string); ok {
		return v
	}
	return ""
}

// Float returns the named numeric parameter, or 0 when absent.
// JSON decoding yields float64 for all numbers.
func (c *Context) Float(key string) float64 {
	switch v := c.Params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// ResourceID returns the resource_id parameter.
func (c *Context) ResourceID() string {
	return c.Str("resource_id")
}

// ValidationError reports parameters rejected before execution.
type ValidationError struct {
	ActionType string
	Reasons    []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameters for %s: %s", e.ActionType, strings.Join(e.Reasons, "; "))
}

// UnsupportedActionTypeError reports an action type absent from the
// registry.
type UnsupportedActionTypeError struct {
	ActionType string
}

func (e *UnsupportedActionTypeError) Error() string {
	return fmt.Sprintf("unsupported action type %q", e.ActionType)
}

// Action is one registered action type. Hooks may be nil; a nil hook
// is a no-op that succeeds. Schema is compiled once at registration.
type Action struct {
	Type string

	// ResourceScoped actions require a resource_id parameter in
	// canonical UUID form. Actions whose resource_id is a hostname
	// (service state changes) leave this false.
	ResourceScoped bool

	schema *gojsonschema.Schema

	Pre     func(c *Context) PreResult
	Execute func(c *Context) error
	Post    func(c *Context) error
	Revert  func(c *Context) error
	Abort   func(c *Context) error
}

// mustSchema compiles a schema literal. Registration-time panics are
// programmer errors, not runtime conditions.
func mustSchema(doc string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("invalid action schema: %v", err))
	}
	return s
}

// ValidateParameters checks params against the schema and, for
// resource-scoped actions, the canonical UUID form of resource_id.
func (a *Action) ValidateParameters(params map[string]any) error {
	if a.schema != nil {
		result, err := a.schema.Validate(gojsonschema.NewGoLoader(params))
		if err != nil {
			return &ValidationError{ActionType: a.Type, Reasons: []string{err.Error()}}
		}
		if !result.Valid() {
			reasons := make([]string, 0, len(result.Errors()))
			for _, desc := range result.Errors() {
				reasons = append(reasons, desc.String())
			}
			return &ValidationError{ActionType: a.Type, Reasons: reasons}
		}
	}
	if a.ResourceScoped {
		id, _ := params["resource_id"].(string)
		if !uuidRe.MatchString(id) {
			return &ValidationError{
				ActionType: a.Type,
				Reasons:    []string{fmt.Sprintf("resource_id %q is not a canonical UUID", id)},
			}
		}
	}
	return nil
}

// PreCondition runs the pre hook.
func (a *Action) PreCondition(c *Context) PreResult {
	if a.Pre == nil {
		return Proceed()
	}
	return a.Pre(c)
}

// Run runs the execute hook.
func (a *Action) Run(c *Context) error {
	if a.Execute == nil {
		return nil
	}
	return a.Execute(c)
}

// PostCondition runs the post hook.
func (a *Action) PostCondition(c *Context) error {
	if a.Post == nil {
		return nil
	}
	return a.Post(c)
}

// RunRevert runs the revert hook.
func (a *Action) RunRevert(c *Context) error {
	if a.Revert == nil {
		return nil
	}
	return a.Revert(c)
}

// Abortable reports whether the action supports mid-flight abort.
func (a *Action) Abortable() bool {
	return a.Abort != nil
}

// RunAbort runs the abort hook.
func (a *Action) RunAbort(c *Context) error {
	if a.Abort == nil {
		return nil
	}
	return a.Abort(c)
}

// Registry maps action_type to its capability object.
type Registry struct {
	byType map[string]*Action
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]*Action)}
}

// Register adds an action type. Duplicate registration is an error.
func (r *Registry) Register(a *Action) error {
	if _, ok := r.byType[a.Type]; ok {
		return fmt.Errorf("action type %q already registered", a.Type)
	}
	r.byType[a.Type] = a
	return nil
}

// Get resolves an action type.
func (r *Registry) Get(actionType string) (*Action, error) {
	a, ok := r.byType[actionType]
	if !ok {
		return nil, &UnsupportedActionTypeError{ActionType: actionType}
	}
	return a, nil
}

// Types lists the registered action types, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry returns a registry with every shipped action type.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, a := range []*Action{
		newMigrate(),
		newResize(),
		newStart(),
		newStop(),
		newServiceState(),
		newVolumeMigrate(),
		newNop(),
		newSleep(),
	} {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
	return r
}
