package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// processConstants evaluates every const attribute into Constants. A
// constant may reference others regardless of declaration order; cycles
// and references to unknown names are reported.
func (c *Config) processConstants(blocks hcl.Blocks) hcl.Diagnostics {
	var diags hcl.Diagnostics
	pending := make(hcl.Attributes)

	for _, block := range blocks {
		attrs, attrDiags := block.Body.JustAttributes()
		diags = diags.Extend(attrDiags)

		for name, attr := range attrs {
			if _, reserved := c.Constants[name]; reserved {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Reserved name",
					Detail:   fmt.Sprintf("%s is predefined and cannot be redefined", name),
					Subject:  &attr.NameRange,
				})
				continue
			}
			if prev, exists := pending[name]; exists {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Duplicate attribute",
					Detail:   fmt.Sprintf("Attribute %s at %v is already defined at %v", name, attr.NameRange, prev.NameRange),
					Subject:  &attr.NameRange,
				})
				continue
			}
			pending[name] = attr
		}
	}
	if diags.HasErrors() {
		return diags
	}

	for len(pending) > 0 {
		progress := false

		for _, name := range sortedAttributeNames(pending) {
			attr := pending[name]
			if !c.resolvable(attr.Expr) {
				continue
			}

			value, evalDiags := attr.Expr.Value(c.evalCtx)
			diags = diags.Extend(evalDiags)
			c.Constants[name] = value
			delete(pending, name)
			progress = true
		}

		if !progress {
			for _, name := range sortedAttributeNames(pending) {
				attr := pending[name]
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Unresolvable constant",
					Detail:   fmt.Sprintf("Constant %s references undefined or circular names: %s", name, strings.Join(c.unresolved(attr.Expr), ", ")),
					Subject:  attr.Expr.Range().Ptr(),
				})
			}
			break
		}
	}

	return diags
}

func (c *Config) resolvable(expr hcl.Expression) bool {
	return len(c.unresolved(expr)) == 0
}

func (c *Config) unresolved(expr hcl.Expression) []string {
	var names []string
	for _, traversal := range expr.Variables() {
		if _, ok := c.Constants[traversal.RootName()]; !ok {
			names = append(names, traversal.RootName())
		}
	}
	return names
}

func sortedAttributeNames(attrs hcl.Attributes) []string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
