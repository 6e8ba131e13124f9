package config

import (
	"testing"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestParseDuration(t *testing.T) {
	config := &Config{
		evalCtx: &hcl.EvalContext{},
	}

	tests := []struct {
		name     string
		input    string
		expected time.Duration
		hasError bool
	}{
		// Numbers (seconds)
		{name: "integer seconds", input: "30", expected: 30 * time.Second},
		{name: "fractional seconds", input: "1.5", expected: 1500 * time.Millisecond},
		{name: "zero", input: "0", expected: 0},
		{name: "negative seconds", input: "-5", hasError: true},

		// ISO 8601
		{name: "ISO minutes", input: `"PT5M"`, expected: 5 * time.Minute},
		{name: "ISO mixed", input: `"PT1H30M"`, expected: 90 * time.Minute},
		{name: "ISO days", input: `"P1D"`, expected: 24 * time.Hour},
		{name: "invalid ISO", input: `"PXYZ"`, hasError: true},

		// Go durations
		{name: "go seconds", input: `"30s"`, expected: 30 * time.Second},
		{name: "go compound", input: `"1h15m"`, expected: 75 * time.Minute},
		{name: "go padded", input: `"  250ms  "`, expected: 250 * time.Millisecond},
		{name: "go negative", input: `"-1s"`, hasError: true},
		{name: "invalid string", input: `"soon"`, hasError: true},

		// Other types
		{name: "bool", input: "true", hasError: true},
		{name: "list", input: "[1]", hasError: true},
		{name: "null", input: "null", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, diags := hclsyntax.ParseExpression([]byte(tt.input), "test.hcl", hcl.Pos{Line: 1, Column: 1})
			require.False(t, diags.HasErrors(), "failed to parse expression: %v", diags)

			d, diags := config.ParseDuration(expr)
			if tt.hasError {
				assert.True(t, diags.HasErrors(), "expected error for %s", tt.input)
				return
			}

			assert.False(t, diags.HasErrors(), "unexpected error: %v", diags)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestIsExpressionProvided(t *testing.T) {
	expr, diags := hclsyntax.ParseExpression([]byte(`"5s"`), "test.hcl", hcl.Pos{Line: 1, Column: 1})
	require.False(t, diags.HasErrors())

	assert.True(t, IsExpressionProvided(expr))
	assert.False(t, IsExpressionProvided(nil))
	assert.False(t, IsExpressionProvided(hcl.StaticExpr(cty.NullVal(cty.DynamicPseudoType), hcl.Range{})))
}
