package actions

import (
	"fmt"

	"github.com/sirocco-cloud/sirocco/pkg/cloud"
	"github.com/sirocco-cloud/sirocco/pkg/log"
)

const (
	MigrationLive = "live"
	MigrationCold = "cold"
)

const migrateSchema = `{
	"type": "object",
	"properties": {
		"resource_id": {"type": "string"},
		"migration_type": {"type": "string", "enum": ["live", "cold"]},
		"source_node": {"type": "string", "minLength": 1},
		"destination_node": {"type": "string"}
	},
	"required": ["resource_id", "migration_type", "source_node"],
	"additionalProperties": false
}`

// migrateInstance drives one migration in the requested direction.
func migrateInstance(c *Context, migrationType, id, destination string) error {
	var err error
	switch migrationType {
	case MigrationLive:
		err = c.retry(func() error { return c.Cloud.LiveMigrateInstance(c.Ctx, id, destination) })
	case MigrationCold:
		err = c.retry(func() error { return c.Cloud.ColdMigrateInstance(c.Ctx, id, destination) })
	default:
		err = fmt.Errorf("unknown migration type %q", migrationType)
	}
	return err
}

func newMigrate() *Action {
	return &Action{
		Type:           TypeMigrate,
		ResourceScoped: true,
		schema:         mustSchema(migrateSchema),
		Pre: func(c *Context) PreResult {
			inst, err := c.Cloud.FindInstance(c.Ctx, c.ResourceID())
			if err != nil {
				return Fail(err)
			}
			if inst == nil {
				// Vanished instances make the migration redundant.
				return Skip("Instance %s not found", c.ResourceID())
			}
			if c.Str("migration_type") == MigrationLive && inst.State != cloud.InstanceActive {
				return Fail(fmt.Errorf("live migration requires an active instance, %s is %s",
					inst.UUID, inst.State))
			}
			return Proceed()
		},
		Execute: func(c *Context) error {
			return migrateInstance(c, c.Str("migration_type"), c.ResourceID(), c.Str("destination_node"))
		},
		Post: func(c *Context) error {
			inst, err := c.Cloud.FindInstance(c.Ctx, c.ResourceID())
			if err != nil {
				return err
			}
			if inst == nil {
				return nil
			}
			if inst.Host == c.Str("source_node") {
				return fmt.Errorf("instance %s still on %s after migration", inst.UUID, inst.Host)
			}
			return nil
		},
		Revert: func(c *Context) error {
			inst, err := c.Cloud.FindInstance(c.Ctx, c.ResourceID())
			if err != nil {
				return err
			}
			if inst == nil || inst.Host == c.Str("source_node") {
				return nil
			}
			log.WithActionUUID(c.ResourceID()).Info().
				Str("destination", c.Str("source_node")).
				Msg("reverting migration")
			return migrateInstance(c, c.Str("migration_type"), c.ResourceID(), c.Str("source_node"))
		},
		Abort: func(c *Context) error {
			if c.Str("migration_type") != MigrationLive {
				return nil
			}
			return c.Cloud.AbortLiveMigration(c.Ctx, c.ResourceID(),
				c.Str("source_node"), c.Str("destination_node"))
		},
	}
}
