// Package kg holds the per-question graph-of-record: entities and relations
// accumulated while answering one question, indexed by the plan aliases that
// bound them.
package kg

import (
	"encoding/json"

	"github.com/OFFIS-RIT/moa/backend/internal/util"
)

// Prop is the property bag of an entity or relation. Direct properties live
// in OriginPropMap; properties unpacked from a nested JSON field live in
// ExtendPropMap; LinkedPropMap records the [[id]] cross-references found in
// property values.
type Prop struct {
	OriginPropMap map[string]string   `json:"origin_prop_map,omitempty"`
	ExtendPropMap map[string]string   `json:"extend_prop_map,omitempty"`
	LinkedPropMap map[string][]string `json:"linked_prop_map,omitempty"`
}

// NewProp returns an empty property bag.
func NewProp() *Prop {
	return &Prop{
		OriginPropMap: make(map[string]string),
		ExtendPropMap: make(map[string]string),
		LinkedPropMap: make(map[string][]string),
	}
}

// SetOrigin stores a direct property. Values shaped like nested JSON objects
// are additionally unpacked into the extend map, and [[id]] markers are
// recorded as linked references.
func (p *Prop) SetOrigin(key, value string) {
	p.OriginPropMap[key] = value

	if refs := util.ExtractLinkedRefs(value); len(refs) > 0 {
		p.LinkedPropMap[key] = refs
	}

	var nested map[string]any
	if err := json.Unmarshal([]byte(value), &nested); err == nil {
		for k, v := range nested {
			if s, ok := v.(string); ok {
				p.ExtendPropMap[k] = s
			}
		}
	}
}

// Get returns a property value, preferring the origin map, with [[id]]
// markers stripped.
func (p *Prop) Get(key string) (string, bool) {
	if v, ok := p.OriginPropMap[key]; ok {
		return util.StripLinkedRefs(v), true
	}
	if v, ok := p.ExtendPropMap[key]; ok {
		return util.StripLinkedRefs(v), true
	}
	return "", false
}

// Keys returns all property keys, origin first.
func (p *Prop) Keys() []string {
	keys := make([]string, 0, len(p.OriginPropMap)+len(p.ExtendPropMap))
	for k := range p.OriginPropMap {
		keys = append(keys, k)
	}
	for k := range p.ExtendPropMap {
		if _, ok := p.OriginPropMap[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// MergeFrom copies properties from other that are absent or empty here.
func (p *Prop) MergeFrom(other *Prop) {
	if other == nil {
		return
	}
	for k, v := range other.OriginPropMap {
		if cur, ok := p.OriginPropMap[k]; !ok || cur == "" {
			p.OriginPropMap[k] = v
		}
	}
	for k, v := range other.ExtendPropMap {
		if cur, ok := p.ExtendPropMap[k]; !ok || cur == "" {
			p.ExtendPropMap[k] = v
		}
	}
	for k, v := range other.LinkedPropMap {
		if _, ok := p.LinkedPropMap[k]; !ok {
			p.LinkedPropMap[k] = v
		}
	}
}

// Clone returns a deep copy of the bag.
func (p *Prop) Clone() *Prop {
	out := NewProp()
	for k, v := range p.OriginPropMap {
		out.OriginPropMap[k] = v
	}
	for k, v := range p.ExtendPropMap {
		out.ExtendPropMap[k] = v
	}
	for k, v := range p.LinkedPropMap {
		refs := make([]string, len(v))
		copy(refs, v)
		out.LinkedPropMap[k] = refs
	}
	return out
}
