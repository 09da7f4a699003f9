package strategy

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirocco-cloud/sirocco/pkg/cancel"
	"github.com/sirocco-cloud/sirocco/pkg/cloud"
	"github.com/sirocco-cloud/sirocco/pkg/datasource"
	"github.com/sirocco-cloud/sirocco/pkg/types"
)

// Request carries everything one strategy run may consume.
type Request struct {
	Ctx        context.Context
	Cloud      cloud.Adapter
	DataSource datasource.DataSource
	Token      *cancel.Token
	Parameters map[string]any
}

// Float reads a numeric parameter with a default.
func (r *Request) Float(key string, def float64) float64 {
	switch v := r.Parameters[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// Str reads a string parameter with a default.
func (r *Request) Str(key, def string) string {
	if v, ok := r.Parameters[key].(string); ok {
		return v
	}
	return def
}

// ParameterSpec documents one strategy parameter.
type ParameterSpec struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default"`
}

// Strategy is one optimization algorithm.
type Strategy interface {
	// Name is the stable registry key.
	Name() string
	DisplayName() string
	// GoalName names the goal this strategy serves.
	GoalName() string
	ParametersSpec() map[string]ParameterSpec
	Execute(req *Request) (*types.Solution, error)
}

// UnknownStrategyError reports a strategy name absent from the registry.
type UnknownStrategyError struct {
	Name string
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("unknown strategy %q", e.Name)
}

// Registry maps strategy name to its implementation.
type Registry struct {
	byName map[string]Strategy
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Strategy)}
}

// Register adds a strategy. Duplicate names are an error.
func (r *Registry) Register(s Strategy) error {
	if _, ok := r.byName[s.Name()]; ok {
		return fmt.Errorf("strategy %q already registered", s.Name())
	}
	r.byName[s.Name()] = s
	return nil
}

// Get resolves a strategy by name.
func (r *Registry) Get(name string) (Strategy, error) {
	s, ok := r.byName[name]
	if !ok {
		return nil, &UnknownStrategyError{Name: name}
	}
	return s, nil
}

// Names lists registered strategies, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry returns a registry with the shipped strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range []Strategy{
		NewDummy(),
		NewBasicConsolidation(),
	} {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}
