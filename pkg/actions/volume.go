package actions

import (
	"fmt"

	"github.com/sirocco-cloud/sirocco/pkg/cloud"
)

const (
	VolumeMigrationSwap    = "swap"
	VolumeMigrationMigrate = "migrate"
	VolumeMigrationRetype  = "retype"
)

const volumeMigrateSchema = `{
	"type": "object",
	"properties": {
		"resource_id": {"type": "string"},
		"migration_type": {"type": "string", "enum": ["swap", "migrate", "retype"]},
		"destination_node": {"type": "string"},
		"destination_type": {"type": "string"}
	},
	"required": ["resource_id", "migration_type"],
	"additionalProperties": false
}`

func newVolumeMigrate() *Action {
	return &Action{
		Type:           TypeVolumeMigrate,
		ResourceScoped: true,
		schema:         mustSchema(volumeMigrateSchema),
		Pre: func(c *Context) PreResult {
			vol, err := c.Cloud.GetVolume(c.Ctx, c.ResourceID())
			if err != nil {
				if cloud.IsNotFound(err) {
					return Skip("Volume %s not found", c.ResourceID())
				}
				return Fail(err)
			}
			if vol.AttachedTo != "" {
				// In-place migration of an attached volume needs the
				// owning instance quiescent enough to swap paths.
				inst, err := c.Cloud.GetInstance(c.Ctx, vol.AttachedTo)
				if err != nil {
					return Fail(err)
				}
				if inst.State != cloud.InstanceActive && inst.State != cloud.InstancePaused {
					return Fail(fmt.Errorf(
						"volume %s attached to instance %s in state %s, need ACTIVE or PAUSED",
						vol.UUID, inst.UUID, inst.State))
				}
			}
			return Proceed()
		},
		Execute: func(c *Context) error {
			id := c.ResourceID()
			switch c.Str("migration_type") {
			case VolumeMigrationRetype:
				return c.retry(func() error {
					return c.Cloud.RetypeVolume(c.Ctx, id, c.Str("destination_type"))
				})
			default:
				// swap is an alias of migrate.
				return c.retry(func() error {
					return c.Cloud.MigrateVolume(c.Ctx, id, c.Str("destination_node"))
				})
			}
		},
	}
}
