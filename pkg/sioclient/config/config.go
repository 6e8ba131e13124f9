// Package config loads client settings from HCL files.
//
// A configuration holds at most one client block, at most one metrics
// block, any number of const blocks and any number of labelled emit
// blocks:
//
//	const {
//	  server = "http://localhost:3000"
//	}
//
//	client {
//	  url          = server
//	  namespace    = "/chat"
//	  framing      = "engineio"
//	  auth         = { token = env.CHAT_TOKEN }
//	  ack_timeout  = "5s"
//	}
//
//	metrics {
//	  provider = "prometheus"
//	  listen   = ":9464"
//	}
//
//	emit "heartbeat" {
//	  event    = "ping"
//	  args     = [1, "two"]
//	  schedule = "@every 30s"
//	}
//
// Expressions may reference constants, the env object and the functions
// returned by GetStandardLibraryFunctions.
package config

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"go.uber.org/zap"
)

type ConfigBuilder struct {
	logger  *zap.Logger
	sources []any
	baseDir string
}

type Config struct {
	Logger    *zap.Logger
	Functions map[string]function.Function
	Constants map[string]cty.Value
	evalCtx   *hcl.EvalContext

	Client  *ClientSettings
	Metrics *MetricsSettings
	Emits   map[string]*EmitSettings
}

func NewConfig() *ConfigBuilder {
	return &ConfigBuilder{
		sources: make([]any, 0),
		baseDir: ".",
	}
}

func (cb *ConfigBuilder) WithLogger(logger *zap.Logger) *ConfigBuilder {
	cb.logger = logger
	return cb
}

func (cb *ConfigBuilder) WithSources(sources ...any) *ConfigBuilder {
	cb.sources = append(cb.sources, sources...)
	return cb
}

// WithBaseDir sets the directory relative file() paths resolve against.
func (cb *ConfigBuilder) WithBaseDir(dir string) *ConfigBuilder {
	cb.baseDir = dir
	return cb
}

func (cb *ConfigBuilder) Build() (*Config, hcl.Diagnostics) {
	logger := cb.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	config := &Config{
		Logger:    logger,
		Functions: GetStandardLibraryFunctions(cb.baseDir),
		Constants: make(map[string]cty.Value),
		Emits:     make(map[string]*EmitSettings),
	}

	bodies, diags := ParseConfigFiles(cb.sources...)
	if diags.HasErrors() {
		return nil, diags
	}

	blocks, addDiags := getBlocks(bodies)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	config.Constants["env"] = GetEnvObject()

	config.evalCtx = &hcl.EvalContext{
		Functions: config.Functions,
		Variables: config.Constants,
	}

	// Constants first, so every other block can reference them.
	diags = diags.Extend(config.processConstants(blocks.OfType("const")))
	if diags.HasErrors() {
		return nil, diags
	}

	blockHandlers := GetBlockHandlers()

	for _, block := range blocks {
		if handler, ok := blockHandlers[block.Type]; ok {
			diags = diags.Extend(handler.Process(config, block))
		}
	}
	if diags.HasErrors() {
		return nil, diags
	}

	logger.Debug("Configuration loaded",
		zap.Bool("client", config.Client != nil),
		zap.Bool("metrics", config.Metrics != nil),
		zap.Int("emits", len(config.Emits)),
		zap.Int("constants", len(config.Constants)-1),
	)

	return config, diags
}

// EvalContext returns the context expressions in this configuration are
// evaluated against.
func (c *Config) EvalContext() *hcl.EvalContext {
	return c.evalCtx
}

func getBlocks(bodies []hcl.Body) (hcl.Blocks, hcl.Diagnostics) {
	diags := hcl.Diagnostics{}

	var blocks hcl.Blocks

	for _, body := range bodies {
		content, contentDiags := body.Content(configSchema)
		diags = diags.Extend(contentDiags)
		if content != nil {
			blocks = append(blocks, content.Blocks...)
		}
	}

	return blocks, diags
}
