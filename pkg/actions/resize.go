package actions

const resizeSchema = `{
	"type": "object",
	"properties": {
		"resource_id": {"type": "string"},
		"flavor": {"type": "string", "minLength": 1}
	},
	"required": ["resource_id", "flavor"],
	"additionalProperties": false
}`

func newResize() *Action {
	return &Action{
		Type:           TypeResize,
		ResourceScoped: true,
		schema:         mustSchema(resizeSchema),
		Pre: func(c *Context) PreResult {
			// Resizing is not idempotent; a missing instance is a failure.
			if _, err := c.Cloud.GetInstance(c.Ctx, c.ResourceID()); err != nil {
				return Fail(err)
			}
			return Proceed()
		},
		Execute: func(c *Context) error {
			return c.retry(func() error {
				return c.Cloud.ResizeInstance(c.Ctx, c.ResourceID(), c.Str("flavor"))
			})
		},
	}
}
