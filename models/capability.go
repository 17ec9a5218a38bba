package models

import "strings"

// Capability is a bitset of features a model or provider can serve.
type Capability uint8

const (
	CapStreaming Capability = 1 << iota
	CapTools
	CapVision
	CapStructuredOutput
	CapLogProbs
)

var capabilityNames = []struct {
	bit  Capability
	name string
}{
	{CapStreaming, "streaming"},
	{CapTools, "tools"},
	{CapVision, "vision"},
	{CapStructuredOutput, "structured_output"},
	{CapLogProbs, "log_probs"},
}

// ParseCapabilities builds a capability bitset from configuration names.
// Unknown names are ignored rather than rejected so that newer catalogs can
// be read by older gateway builds.
func ParseCapabilities(names []string) Capability {
	var c Capability
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		for _, cn := range capabilityNames {
			if cn.name == n {
				c |= cn.bit
			}
		}
	}
	return c
}

// Has reports whether every bit in want is present in c.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// Names returns the set bits as configuration names in declaration order.
func (c Capability) Names() []string {
	var names []string
	for _, cn := range capabilityNames {
		if c&cn.bit != 0 {
			names = append(names, cn.name)
		}
	}
	return names
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	return strings.Join(c.Names(), ",")
}
