// Package logicform parses textual operator expressions produced by the
// question planner into typed plan nodes. One expression describes one
// reasoning step: retrieve a graph pattern, compute a value, deduce a
// verdict, or output bound aliases.
package logicform

import (
	"fmt"
	"strings"
)

// TypeInfo carries the standardized and the display form of an entity or
// relation type. At least one of the two is set.
type TypeInfo struct {
	Std   string `json:"std,omitempty"`
	UnStd string `json:"un_std,omitempty"`
}

// Label returns the standardized name when available, otherwise the
// display name.
func (t TypeInfo) Label() string {
	if t.Std != "" {
		return t.Std
	}
	return t.UnStd
}

// CompareOp is a constraint comparison operator.
type CompareOp string

const (
	OpEqual        CompareOp = "="
	OpGreater      CompareOp = ">"
	OpLess         CompareOp = "<"
	OpGreaterEqual CompareOp = ">="
	OpLessEqual    CompareOp = "<="
)

// Constraint restricts a property of a bound pattern, e.g. `o1.year>=1950`.
type Constraint struct {
	Prop  string    `json:"prop"`
	Op    CompareOp `json:"op"`
	Value string    `json:"value"`
}

// SPOBase is the part shared by entity and relation references: the alias
// bound at parse time, the declared type set, and any property constraints.
// The alias is assigned once and never renamed.
type SPOBase struct {
	Alias       string       `json:"alias"`
	Types       []TypeInfo   `json:"types,omitempty"`
	IsAttribute bool         `json:"is_attribute,omitempty"`
	Constraints []Constraint `json:"constraints,omitempty"`
}

// TypeLabels returns the labels of all declared types.
func (b *SPOBase) TypeLabels() []string {
	if len(b.Types) == 0 {
		return nil
	}
	labels := make([]string, 0, len(b.Types))
	for _, t := range b.Types {
		labels = append(labels, t.Label())
	}
	return labels
}

// UnStdLabels returns the display names of all declared types, falling back
// to the standardized name when no display name was recorded.
func (b *SPOBase) UnStdLabels() []string {
	if len(b.Types) == 0 {
		return nil
	}
	labels := make([]string, 0, len(b.Types))
	for _, t := range b.Types {
		if t.UnStd != "" {
			labels = append(labels, t.UnStd)
		} else {
			labels = append(labels, t.Std)
		}
	}
	return labels
}

// AddConstraint appends a property constraint to the reference.
func (b *SPOBase) AddConstraint(c Constraint) {
	b.Constraints = append(b.Constraints, c)
}

func (b *SPOBase) typeSuffix() string {
	if len(b.Types) == 0 {
		return ""
	}
	return ":" + strings.Join(b.UnStdLabels(), "|")
}

// SPOEntity is a parsed reference to an entity pattern: alias, optional
// type set, optional literal name to search for, optional literal id set.
type SPOEntity struct {
	SPOBase
	Name  string   `json:"name,omitempty"`
	IDSet []string `json:"id_set,omitempty"`
}

// String renders the reference in canonical expression form.
func (e *SPOEntity) String() string {
	var sb strings.Builder
	sb.WriteString(e.Alias)
	sb.WriteString(e.typeSuffix())
	if e.Name != "" {
		fmt.Fprintf(&sb, "[`%s`]", escapeBackticks(e.Name))
	}
	if len(e.IDSet) > 0 {
		sb.WriteString("[")
		sb.WriteString(strings.Join(e.IDSet, "|"))
		sb.WriteString("]")
	}
	return sb.String()
}

// MentionLabel renders the reference as "Type[name]" for prompt hints.
func (e *SPOEntity) MentionLabel() string {
	typ := ""
	if labels := e.UnStdLabels(); len(labels) > 0 {
		typ = labels[0]
	}
	if e.Name == "" {
		return typ
	}
	return fmt.Sprintf("%s[%s]", typ, e.Name)
}

// SPORelation is a parsed reference to a relation pattern between a subject
// and an object entity reference.
type SPORelation struct {
	SPOBase
	Subject *SPOEntity `json:"-"`
	Object  *SPOEntity `json:"-"`
}

// String renders the reference in canonical expression form.
func (r *SPORelation) String() string {
	return r.Alias + r.typeSuffix()
}

func escapeBackticks(s string) string {
	return strings.ReplaceAll(s, "|", "``")
}
