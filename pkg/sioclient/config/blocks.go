package config

import "github.com/hashicorp/hcl/v2"

// BlockHandler decodes one kind of top-level block into the Config.
type BlockHandler interface {
	Process(config *Config, block *hcl.Block) hcl.Diagnostics
}

func GetBlockHandlers() map[string]BlockHandler {
	return map[string]BlockHandler{
		"client":  NewClientBlockHandler(),
		"emit":    NewEmitBlockHandler(),
		"metrics": NewMetricsBlockHandler(),
	}
}
