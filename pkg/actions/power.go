package actions

import "github.com/sirocco-cloud/sirocco/pkg/cloud"

const powerSchema = `{
	"type": "object",
	"properties": {
		"resource_id": {"type": "string"}
	},
	"required": ["resource_id"],
	"additionalProperties": false
}`

func newStart() *Action {
	return &Action{
		Type:           TypeStart,
		ResourceScoped: true,
		schema:         mustSchema(powerSchema),
		Pre: func(c *Context) PreResult {
			inst, err := c.Cloud.FindInstance(c.Ctx, c.ResourceID())
			if err != nil {
				return Fail(err)
			}
			if inst == nil {
				return Skip("Instance %s not found", c.ResourceID())
			}
			if inst.State == cloud.InstanceActive {
				return Skip("Instance %s already active", c.ResourceID())
			}
			return Proceed()
		},
		Execute: func(c *Context) error {
			return c.retry(func() error { return c.Cloud.StartInstance(c.Ctx, c.ResourceID()) })
		},
		Post: func(c *Context) error {
			return c.Cloud.WaitForInstanceState(c.Ctx, c.ResourceID(),
				cloud.InstanceActive, c.MaxRetries, c.RetryInterval)
		},
		Revert: func(c *Context) error {
			return c.retry(func() error { return c.Cloud.StopInstance(c.Ctx, c.ResourceID()) })
		},
	}
}

func newStop() *Action {
	return &Action{
		Type:           TypeStop,
		ResourceScoped: true,
		schema:         mustSchema(powerSchema),
		Pre: func(c *Context) PreResult {
			inst, err := c.Cloud.FindInstance(c.Ctx, c.ResourceID())
			if err != nil {
				return Fail(err)
			}
			if inst == nil {
				return Skip("Instance %s not found", c.ResourceID())
			}
			if inst.State == cloud.InstanceStopped {
				return Skip("Instance %s already stopped", c.ResourceID())
			}
			return Proceed()
		},
		Execute: func(c *Context) error {
			return c.retry(func() error { return c.Cloud.StopInstance(c.Ctx, c.ResourceID()) })
		},
		Post: func(c *Context) error {
			return c.Cloud.WaitForInstanceState(c.Ctx, c.ResourceID(),
				cloud.InstanceStopped, c.MaxRetries, c.RetryInterval)
		},
		Revert: func(c *Context) error {
			return c.retry(func() error { return c.Cloud.StartInstance(c.Ctx, c.ResourceID()) })
		},
	}
}
