package actions

import (
	"time"

	"github.com/sirocco-cloud/sirocco/pkg/log"
)

const nopSchema = `{
	"type": "object",
	"properties": {
		"message": {"type": "string"}
	},
	"additionalProperties": false
}`

const sleepSchema = `{
	"type": "object",
	"properties": {
		"duration": {"type": "number", "minimum": 0}
	},
	"required": ["duration"],
	"additionalProperties": false
}`

func newNop() *Action {
	return &Action{
		Type:   TypeNop,
		schema: mustSchema(nopSchema),
		Execute: func(c *Context) error {
			log.WithComponent("actions").Info().Str("message", c.Str("message")).Msg("nop")
			return nil
		},
	}
}

func newSleep() *Action {
	return &Action{
		Type:   TypeSleep,
		schema: mustSchema(sleepSchema),
		Execute: func(c *Context) error {
			d := time.Duration(c.Float("duration") * float64(time.Second))
			select {
			case <-c.Ctx.Done():
				return c.Ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
}
