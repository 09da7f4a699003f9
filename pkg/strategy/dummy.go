package strategy

import (
	"github.com/sirocco-cloud/sirocco/pkg/actions"
	"github.com/sirocco-cloud/sirocco/pkg/types"
)

// Dummy exercises the whole pipeline without touching the cloud. It
// proposes one nop and one sleep, which is enough to drive planning,
// execution and notifications end to end.
type Dummy struct{}

// NewDummy returns the dummy strategy.
func NewDummy() *Dummy {
	return &Dummy{}
}

func (d *Dummy) Name() string        { return "dummy" }
func (d *Dummy) DisplayName() string { return "Dummy strategy" }
func (d *Dummy) GoalName() string    { return "dummy" }

func (d *Dummy) ParametersSpec() map[string]ParameterSpec {
	return map[string]ParameterSpec{
		"message": {
			Type:        "string",
			Description: "text carried by the nop action",
			Default:     "hello from the dummy strategy",
		},
		"sleep_seconds": {
			Type:        "number",
			Description: "duration of the sleep action",
			Default:     1.0,
		},
	}
}

func (d *Dummy) Execute(req *Request) (*types.Solution, error) {
	if err := req.Token.Check(); err != nil {
		return nil, err
	}
	sol := &types.Solution{}
	sol.AddAction(actions.TypeNop, "", map[string]any{
		"message": req.Str("message", "hello from the dummy strategy"),
	})
	sol.AddAction(actions.TypeSleep, "", map[string]any{
		"duration": req.Float("sleep_seconds", 1),
	})
	return sol, nil
}
