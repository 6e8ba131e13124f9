package config

import (
	"github.com/hashicorp/hcl/v2"
)

var blockSchema = []hcl.BlockHeaderSchema{
	{
		Type:       "client",
		LabelNames: []string{},
	},
	{
		Type:       "const",
		LabelNames: []string{},
	},
	{
		Type:       "emit",
		LabelNames: []string{"name"},
	},
	{
		Type:       "metrics",
		LabelNames: []string{},
	},
}

var configSchema = &hcl.BodySchema{
	Blocks: blockSchema,
}
