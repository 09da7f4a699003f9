package actions

import (
	"github.com/sirocco-cloud/sirocco/pkg/cloud"
)

const serviceStateSchema = `{
	"type": "object",
	"properties": {
		"resource_id": {"type": "string", "minLength": 1},
		"state": {"type": "string", "enum": ["enabled", "disabled"]},
		"disabled_reason": {"type": "string"}
	},
	"required": ["resource_id", "state"],
	"additionalProperties": false
}`

// setServiceState enables or disables the compute service on host.
func setServiceState(c *Context, host, state, reason string) error {
	if state == cloud.ServiceEnabled {
		return c.retry(func() error { return c.Cloud.EnableService(c.Ctx, host) })
	}
	return c.retry(func() error { return c.Cloud.DisableService(c.Ctx, host, reason) })
}

func newServiceState() *Action {
	return &Action{
		Type: TypeServiceState,
		// resource_id is a hostname here, not an instance UUID.
		ResourceScoped: false,
		schema:         mustSchema(serviceStateSchema),
		Pre: func(c *Context) PreResult {
			node, err := c.Cloud.GetComputeNodeByHostname(c.Ctx, c.ResourceID())
			if err != nil {
				return Fail(err)
			}
			if node.Status == c.Str("state") {
				return Skip("Service on %s already %s", node.Hostname, node.Status)
			}
			return Proceed()
		},
		Execute: func(c *Context) error {
			return setServiceState(c, c.ResourceID(), c.Str("state"), c.Str("disabled_reason"))
		},
		Revert: func(c *Context) error {
			opposite := cloud.ServiceEnabled
			if c.Str("state") == cloud.ServiceEnabled {
				opposite = cloud.ServiceDisabled
			}
			return setServiceState(c, c.ResourceID(), opposite, "reverted")
		},
	}
}
