package core

import "maps"

// Result is the opaque output of a provider call. Executors are expected to
// return values that encode as JSON (maps, slices, strings, numbers, structs).
type Result = any

// Operation describes what to do against a provider. It is an immutable value:
// helpers return modified copies and never touch the receiver's parameters.
type Operation struct {
	Provider   string         `json:"provider"`
	Action     string         `json:"action"`
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// NewOperation builds an Operation owning a private copy of params.
func NewOperation(provider, action, typ string, params map[string]any) Operation {
	return Operation{Provider: provider, Action: action, Type: typ, Parameters: maps.Clone(params)}
}

// Clone returns a copy with its own top-level parameter map.
func (o Operation) Clone() Operation {
	o.Parameters = maps.Clone(o.Parameters)
	return o
}

// WithProvider returns a copy bound to another provider.
func (o Operation) WithProvider(provider string) Operation {
	c := o.Clone()
	c.Provider = provider
	return c
}

// WithParameters returns a copy whose parameters are the receiver's merged
// with the given layers. Later layers win on key collisions.
func (o Operation) WithParameters(layers ...map[string]any) Operation {
	c := o.Clone()
	if c.Parameters == nil {
		c.Parameters = map[string]any{}
	}
	for _, layer := range layers {
		for k, v := range layer {
			c.Parameters[k] = v
		}
	}
	return c
}
