package kg

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ToSPOPath renders the bound edges in answer-path form: one line per
// subject and predicate, with all objects grouped, e.g.
// "Alan Turing birthYear {1912}". When aliases is non-empty, only edge
// aliases in the list are rendered.
func (g *KgGraph) ToSPOPath(aliases ...string) string {
	filter := make(map[string]struct{}, len(aliases))
	for _, a := range aliases {
		filter[a] = struct{}{}
	}

	var lines []string
	for _, alias := range g.EdgeAlias {
		if len(filter) > 0 {
			if _, ok := filter[alias]; !ok {
				continue
			}
		}

		grouped := make(map[string][]string)
		var order []string
		for _, rel := range g.EdgeMap[alias] {
			key := rel.FromName() + " " + rel.typeLabel()
			if _, ok := grouped[key]; !ok {
				order = append(order, key)
			}
			end := rel.EndName()
			if !contains(grouped[key], end) {
				grouped[key] = append(grouped[key], end)
			}
		}
		for _, key := range order {
			lines = append(lines, fmt.Sprintf("%s {%s}", key, strings.Join(grouped[key], ", ")))
		}
	}
	return strings.Join(lines, "\n")
}

// ToEvidence renders the graph as flat evidence strings for LLM context:
// one line per bound edge, then one line per answered alias.
func (g *KgGraph) ToEvidence() []string {
	var lines []string
	seen := make(map[string]struct{})
	for _, alias := range g.EdgeAlias {
		for _, rel := range g.EdgeMap[alias] {
			line := rel.ToEvidence()
			if _, ok := seen[line]; ok {
				continue
			}
			seen[line] = struct{}{}
			lines = append(lines, line)
		}
	}
	for _, alias := range g.AnsweredAliasNames() {
		values := g.AnsweredAlias[alias]
		if len(values) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s = %s", alias, strings.Join(values, ", ")))
	}
	return lines
}

type graphJSON struct {
	QueryGraph         map[string]SPOPattern      `json:"query_graph"`
	NodesAlias         []string                   `json:"nodes_alias"`
	EdgeAlias          []string                   `json:"edge_alias"`
	StartNodeAliasName []string                   `json:"start_node_alias_name"`
	StartNodeName      []string                   `json:"start_node_name"`
	EntityMap          map[string][]*EntityData   `json:"entity_map"`
	EdgeMap            map[string][]*RelationData `json:"edge_map"`
}

// ToJSON serializes the graph-of-record for result reporting.
func (g *KgGraph) ToJSON() ([]byte, error) {
	return json.Marshal(graphJSON{
		QueryGraph:         g.QueryGraph,
		NodesAlias:         emptyIfNil(g.NodesAlias),
		EdgeAlias:          emptyIfNil(g.EdgeAlias),
		StartNodeAliasName: emptyIfNil(g.StartNodeAliasName),
		StartNodeName:      emptyIfNil(g.StartNodeName),
		EntityMap:          g.EntityMap,
		EdgeMap:            g.EdgeMap,
	})
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
