package config

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"

	"github.com/tsarna/sioclient/pkg/sioclient"
	"github.com/tsarna/sioclient/pkg/sioclient/client"
)

type EmitDefinition struct {
	Event      string         `hcl:"event"`
	Args       hcl.Expression `hcl:"args,optional"`
	Schedule   string         `hcl:"schedule,optional"`
	Timezone   string         `hcl:"timezone,optional"`
	Ack        bool           `hcl:"ack,optional"`
	AckTimeout hcl.Expression `hcl:"ack_timeout,optional"`
}

// EmitSettings describes an event to emit, either once or on a cron
// schedule.
type EmitSettings struct {
	Name  string
	Event string
	Args  []any

	// Schedule is a cron spec with optional seconds field, or a descriptor
	// such as "@every 30s". Empty means the emit is not scheduled.
	Schedule string
	Timezone string

	Ack        bool
	AckTimeout time.Duration
}

type EmitBlockHandler struct{}

func NewEmitBlockHandler() *EmitBlockHandler {
	return &EmitBlockHandler{}
}

func (h *EmitBlockHandler) Process(config *Config, block *hcl.Block) hcl.Diagnostics {
	name := block.Labels[0]
	if _, exists := config.Emits[name]; exists {
		return hcl.Diagnostics{&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Duplicate emit block",
			Detail:   fmt.Sprintf("An emit named %q is already defined", name),
			Subject:  &block.DefRange,
		}}
	}

	def := EmitDefinition{}
	diags := gohcl.DecodeBody(block.Body, config.evalCtx, &def)
	if diags.HasErrors() {
		return diags
	}

	settings := &EmitSettings{
		Name:     name,
		Event:    def.Event,
		Schedule: def.Schedule,
		Timezone: def.Timezone,
		Ack:      def.Ack,
	}

	var addDiags hcl.Diagnostics
	settings.AckTimeout, addDiags = config.ParseDuration(def.AckTimeout)
	diags = diags.Extend(addDiags)

	if IsExpressionProvided(def.Args) {
		args, argDiags := decodeArgs(config, def.Args)
		diags = diags.Extend(argDiags)
		settings.Args = args
	}

	if diags.HasErrors() {
		return diags
	}

	if err := settings.Validate(); err != nil {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid emit block",
			Detail:   err.Error(),
			Subject:  &block.DefRange,
		})
	}

	config.Emits[name] = settings

	return diags
}

func decodeArgs(config *Config, expr hcl.Expression) ([]any, hcl.Diagnostics) {
	value, diags := expr.Value(config.evalCtx)
	if diags.HasErrors() {
		return nil, diags
	}

	if !value.Type().IsTupleType() && !value.Type().IsListType() {
		return nil, diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid args",
			Detail:   fmt.Sprintf("args must be a list, got %s", value.Type().FriendlyName()),
			Subject:  expr.Range().Ptr(),
		})
	}

	converted, err := CtyToAny(value)
	if err != nil {
		return nil, diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid args",
			Detail:   err.Error(),
			Subject:  expr.Range().Ptr(),
		})
	}

	args, _ := converted.([]any)
	return args, diags
}

// Validate checks the event name, argument types and schedule.
func (e *EmitSettings) Validate() error {
	if e.Event == "" {
		return fmt.Errorf("event name is required")
	}
	switch e.Event {
	case client.EventConnect, client.EventDisconnect, client.EventError:
		return fmt.Errorf("%q is a reserved event name", e.Event)
	}

	if _, err := sioclient.FromAnySlice(e.Args); err != nil {
		return fmt.Errorf("invalid args: %w", err)
	}

	if e.Schedule != "" {
		if _, err := CronParser.Parse(e.cronSpec()); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", e.Schedule, err)
		}
	}

	return nil
}

func (e *EmitSettings) cronSpec() string {
	if e.Timezone == "" {
		return e.Schedule
	}
	return "CRON_TZ=" + e.Timezone + " " + e.Schedule
}

// Send emits the event once. When Ack is set it waits for the reply and
// returns its payload; an ack timeout yields an empty payload.
func (e *EmitSettings) Send(ctx context.Context, c *client.Client) ([]sioclient.Data, error) {
	if !e.Ack {
		return nil, c.Emit(e.Event, e.Args...)
	}

	replies := make(chan []sioclient.Data, 1)
	err := c.EmitWithAckTimeout(e.Event, e.AckTimeout, func(data []sioclient.Data) {
		replies <- data
	}, e.Args...)
	if err != nil {
		return nil, err
	}

	select {
	case data := <-replies:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
