package kg

import (
	"fmt"
	"strings"
)

// EntityData is a materialized graph node.
type EntityData struct {
	BizID       string  `json:"biz_id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	TypeZH      string  `json:"type_zh,omitempty"`
	Description string  `json:"description,omitempty"`
	Prop        *Prop   `json:"prop,omitempty"`
	Score       float64 `json:"score"`
}

// Key returns the identity used for dedup and merge: two EntityData with the
// same biz_id and type are the same entity.
func (e *EntityData) Key() string {
	return e.BizID + "_" + e.Type
}

// ShortName returns the display name, falling back to the graph id.
func (e *EntityData) ShortName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.BizID
}

// MergeFrom folds another record of the same entity into this one. Non-empty
// fields win; the higher relevance score is kept.
func (e *EntityData) MergeFrom(other *EntityData) {
	if other == nil {
		return
	}
	if e.Name == "" {
		e.Name = other.Name
	}
	if e.Type == "" {
		e.Type = other.Type
	}
	if e.TypeZH == "" {
		e.TypeZH = other.TypeZH
	}
	if e.Description == "" {
		e.Description = other.Description
	}
	if other.Score > e.Score {
		e.Score = other.Score
	}
	if other.Prop != nil {
		if e.Prop == nil {
			e.Prop = NewProp()
		}
		e.Prop.MergeFrom(other.Prop)
	}
}

// ToEvidence renders the entity as one evidence line for LLM context.
func (e *EntityData) ToEvidence() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s[%s]", e.ShortName(), e.typeLabel())
	if e.Description != "" {
		fmt.Fprintf(&sb, ": %s", e.Description)
	}
	if e.Prop != nil {
		for _, k := range e.Prop.Keys() {
			v, _ := e.Prop.Get(k)
			fmt.Fprintf(&sb, "; %s=%s", k, v)
		}
	}
	return sb.String()
}

func (e *EntityData) typeLabel() string {
	if e.TypeZH != "" {
		return e.TypeZH
	}
	return e.Type
}

// RelationData is a materialized edge between two entities.
type RelationData struct {
	FromID     string      `json:"from_id"`
	EndID      string      `json:"end_id"`
	FromType   string      `json:"from_type"`
	EndType    string      `json:"end_type"`
	FromEntity *EntityData `json:"-"`
	EndEntity  *EntityData `json:"-"`
	Type       string      `json:"type"`
	TypeZH     string      `json:"type_zh,omitempty"`
	Prop       *Prop       `json:"prop,omitempty"`
	Score      float64     `json:"score"`

	// set by RevertSPO so a reverted edge keeps the identity of the edge it
	// was derived from
	key string
}

// Key returns the tuple identity of the edge. An edge produced by RevertSPO
// keeps the key of its source edge, so an edge and its revert deduplicate to
// one entry.
func (r *RelationData) Key() string {
	if r.key != "" {
		return r.key
	}
	return r.FromID + "_" + r.Type + "_" + r.EndID
}

// RevertSPO returns the edge with subject and object swapped. Identity is
// preserved: the reverted edge has the original Key.
func (r *RelationData) RevertSPO() *RelationData {
	return &RelationData{
		FromID:     r.EndID,
		EndID:      r.FromID,
		FromType:   r.EndType,
		EndType:    r.FromType,
		FromEntity: r.EndEntity,
		EndEntity:  r.FromEntity,
		Type:       r.Type,
		TypeZH:     r.TypeZH,
		Prop:       r.Prop,
		Score:      r.Score,
		key:        r.Key(),
	}
}

// FromName returns the display name of the subject endpoint.
func (r *RelationData) FromName() string {
	if r.FromEntity != nil {
		return r.FromEntity.ShortName()
	}
	return r.FromID
}

// EndName returns the display name of the object endpoint.
func (r *RelationData) EndName() string {
	if r.EndEntity != nil {
		return r.EndEntity.ShortName()
	}
	return r.EndID
}

func (r *RelationData) typeLabel() string {
	if r.TypeZH != "" {
		return r.TypeZH
	}
	return r.Type
}

// ToEvidence renders the edge as one evidence line for LLM context.
func (r *RelationData) ToEvidence() string {
	return fmt.Sprintf("%s[%s] %s %s[%s]", r.FromName(), r.FromType, r.typeLabel(), r.EndName(), r.EndType)
}

// OneHopGraphData is the direct neighborhood of one entity: its relations
// grouped by predicate name, split by direction.
type OneHopGraphData struct {
	Entity       *EntityData                `json:"entity"`
	InRelations  map[string][]*RelationData `json:"in_relations,omitempty"`
	OutRelations map[string][]*RelationData `json:"out_relations,omitempty"`
}

// NewOneHopGraphData wraps an entity with empty relation maps.
func NewOneHopGraphData(entity *EntityData) *OneHopGraphData {
	return &OneHopGraphData{
		Entity:       entity,
		InRelations:  make(map[string][]*RelationData),
		OutRelations: make(map[string][]*RelationData),
	}
}

// AddRelation records an edge under its predicate name. out marks edges
// leaving the center entity.
func (g *OneHopGraphData) AddRelation(rel *RelationData, out bool) {
	if out {
		g.OutRelations[rel.Type] = append(g.OutRelations[rel.Type], rel)
	} else {
		g.InRelations[rel.Type] = append(g.InRelations[rel.Type], rel)
	}
}

// AllRelations returns every edge of the neighborhood, outgoing first.
func (g *OneHopGraphData) AllRelations() []*RelationData {
	var out []*RelationData
	for _, rels := range g.OutRelations {
		out = append(out, rels...)
	}
	for _, rels := range g.InRelations {
		out = append(out, rels...)
	}
	return out
}

// EvidenceStrings renders every adjacent relation and every entity property
// as short candidate strings, index-aligned with the returned relations.
// Properties are synthesized into attribute edges so a selected property can
// be materialized like a relation.
func (g *OneHopGraphData) EvidenceStrings() ([]string, []*RelationData) {
	var lines []string
	var rels []*RelationData
	for _, rel := range g.AllRelations() {
		lines = append(lines, rel.ToEvidence())
		rels = append(rels, rel)
	}
	if g.Entity != nil && g.Entity.Prop != nil {
		for _, k := range g.Entity.Prop.Keys() {
			v, _ := g.Entity.Prop.Get(k)
			lines = append(lines, fmt.Sprintf("%s %s %s", g.Entity.ShortName(), k, v))
			rels = append(rels, g.attributeRelation(k, v))
		}
	}
	return lines, rels
}

// attributeRelation wraps an entity property as an edge to a literal value
// node.
func (g *OneHopGraphData) attributeRelation(key, value string) *RelationData {
	return &RelationData{
		FromID:     g.Entity.BizID,
		EndID:      value,
		FromType:   g.Entity.Type,
		EndType:    "Text",
		FromEntity: g.Entity,
		EndEntity:  &EntityData{BizID: value, Name: value, Type: "Text", Score: g.Entity.Score},
		Type:       key,
		Score:      g.Entity.Score,
	}
}
