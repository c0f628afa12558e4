package kg

import (
	"slices"
	"testing"
)

func entity(id, name, typ, description string, score float64) *EntityData {
	return &EntityData{BizID: id, Name: name, Type: typ, Description: description, Score: score}
}

func relation(fromID, typ, endID string) *RelationData {
	return &RelationData{FromID: fromID, EndID: endID, FromType: "Person", EndType: "City", Type: typ, Score: 1.0}
}

func sampleGraph(desc string) *KgGraph {
	g := NewKgGraph()
	g.AddNodes("x", []*EntityData{entity("42", "Alan Turing", "Person", desc, 0.95)})
	g.AddEdges("p1", SPOPattern{S: "x", P: "p1", O: "o1"}, []*RelationData{relation("42", "bornIn", "london")})
	return g
}

func TestMergeIdempotence(t *testing.T) {
	g := sampleGraph("mathematician")
	g.AddAnsweredAlias("m1", "1912")

	nodes := len(g.NodesAlias)
	edges := len(g.EdgeAlias)
	entities := len(g.EntityMap["x"])
	relations := len(g.EdgeMap["p1"])

	g.Merge(g)

	if len(g.NodesAlias) != nodes || len(g.EdgeAlias) != edges {
		t.Errorf("alias sets changed: nodes %d->%d edges %d->%d", nodes, len(g.NodesAlias), edges, len(g.EdgeAlias))
	}
	if len(g.EntityMap["x"]) != entities {
		t.Errorf("entity count changed: %d -> %d", entities, len(g.EntityMap["x"]))
	}
	if len(g.EdgeMap["p1"]) != relations {
		t.Errorf("relation count changed: %d -> %d", relations, len(g.EdgeMap["p1"]))
	}
	if got := g.GetAnsweredAlias("m1"); len(got) != 1 {
		t.Errorf("answered values = %v, want one entry", got)
	}

	other := sampleGraph("mathematician")
	g.Merge(other)
	if len(g.EntityMap["x"]) != entities || len(g.EdgeMap["p1"]) != relations {
		t.Error("merging an identical graph changed counts")
	}
}

func TestMergeAssociativity(t *testing.T) {
	build := func() (a, b, c *KgGraph) {
		a = NewKgGraph()
		a.AddNodes("x", []*EntityData{entity("1", "A", "T", "", 0.9)})
		b = NewKgGraph()
		b.AddNodes("x", []*EntityData{entity("2", "B", "T", "", 0.9)})
		b.AddEdges("p1", SPOPattern{S: "x", P: "p1", O: "y"}, []*RelationData{relation("1", "r", "2")})
		c = NewKgGraph()
		c.AddNodes("y", []*EntityData{entity("3", "C", "T", "", 0.9)})
		c.AddEdges("p1", SPOPattern{S: "x", P: "p1", O: "y"}, []*RelationData{relation("2", "r", "3")})
		return a, b, c
	}

	a1, b1, c1 := build()
	a1.Merge(b1)
	a1.Merge(c1)

	a2, b2, c2 := build()
	b2.Merge(c2)
	a2.Merge(b2)

	if len(a1.EntityMap) != len(a2.EntityMap) {
		t.Fatalf("entity alias sets differ: %d vs %d", len(a1.EntityMap), len(a2.EntityMap))
	}
	for alias := range a1.EntityMap {
		if len(a1.EntityMap[alias]) != len(a2.EntityMap[alias]) {
			t.Errorf("alias %q entity counts differ: %d vs %d", alias, len(a1.EntityMap[alias]), len(a2.EntityMap[alias]))
		}
	}
	for alias := range a1.EdgeMap {
		if len(a1.EdgeMap[alias]) != len(a2.EdgeMap[alias]) {
			t.Errorf("alias %q relation counts differ: %d vs %d", alias, len(a1.EdgeMap[alias]), len(a2.EdgeMap[alias]))
		}
	}
}

func TestMergePrefersPopulatedFields(t *testing.T) {
	g1 := sampleGraph("")
	g2 := sampleGraph("British mathematician and computer scientist")

	g1.Merge(g2)

	entities := g1.EntityMap["x"]
	if len(entities) != 1 {
		t.Fatalf("entity count = %d, want 1", len(entities))
	}
	if entities[0].Description != "British mathematician and computer scientist" {
		t.Errorf("description = %q, want the populated one", entities[0].Description)
	}
}

func TestAliasUniqueness(t *testing.T) {
	g := NewKgGraph()
	g.AddNodes("x", []*EntityData{entity("1", "A", "T", "", 0.9)})
	g.AddEdges("p1", SPOPattern{S: "x", P: "p1", O: "y"}, []*RelationData{relation("1", "r", "2")})
	g.AddAnsweredAlias("m1", "7")
	g.AddAnsweredAlias("x", "A")

	answered := g.AnsweredAliasNames()
	for _, alias := range g.NodesAlias {
		if slices.Contains(g.EdgeAlias, alias) {
			t.Errorf("alias %q in both nodes_alias and edge_alias", alias)
		}
		if slices.Contains(answered, alias) {
			t.Errorf("alias %q in both nodes_alias and answered set", alias)
		}
	}
	for _, alias := range g.EdgeAlias {
		if slices.Contains(answered, alias) {
			t.Errorf("alias %q in both edge_alias and answered set", alias)
		}
	}
	if !slices.Contains(answered, "m1") {
		t.Errorf("answered set = %v, want it to contain m1", answered)
	}
}

func TestGetEntityByAliasSynthesizesFromEdges(t *testing.T) {
	g := NewKgGraph()
	rel := relation("42", "bornIn", "london")
	rel.EndEntity = entity("london", "London", "City", "", 0.9)
	g.AddEdges("p1", SPOPattern{S: "s1", P: "p1", O: "o1"}, []*RelationData{rel})

	got := g.GetEntityByAlias("o1")
	if len(got) != 1 {
		t.Fatalf("synthesized %d entities, want 1", len(got))
	}
	if got[0].Name != "London" {
		t.Errorf("entity name = %q, want London", got[0].Name)
	}

	if got := g.GetEntityByAlias("unbound"); got != nil {
		t.Errorf("unbound alias = %v, want nil", got)
	}
}

func TestRmvNodeInsFiltersEdgesTransitively(t *testing.T) {
	g := NewKgGraph()
	g.AddNodes("x", []*EntityData{
		entity("1", "A", "Person", "", 0.9),
		entity("2", "B", "Person", "", 0.9),
	})
	g.AddEdges("p1", SPOPattern{S: "x", P: "p1", O: "y"}, []*RelationData{
		relation("1", "r", "10"),
		relation("2", "r", "20"),
	})

	g.RmvNodeIns("x", []string{"2"})

	if len(g.EntityMap["x"]) != 1 || g.EntityMap["x"][0].BizID != "1" {
		t.Fatalf("entities after removal = %v", g.EntityMap["x"])
	}
	rels := g.EdgeMap["p1"]
	if len(rels) != 1 || rels[0].FromID != "1" {
		t.Errorf("edges after removal = %d, want only the edge from 1", len(rels))
	}
}

func TestRmvEdgeInsPrunesEndpoints(t *testing.T) {
	g := NewKgGraph()
	g.AddNodes("y", []*EntityData{
		entity("10", "X", "City", "", 0.9),
		entity("20", "Y", "City", "", 0.9),
	})
	r1 := relation("1", "r", "10")
	r2 := relation("2", "r", "20")
	g.AddEdges("p1", SPOPattern{S: "x", P: "p1", O: "y"}, []*RelationData{r1, r2})

	g.RmvEdgeIns("p1", []string{r2.Key()})

	if len(g.EdgeMap["p1"]) != 1 {
		t.Fatalf("edges = %d, want 1", len(g.EdgeMap["p1"]))
	}
	if len(g.EntityMap["y"]) != 1 || g.EntityMap["y"][0].BizID != "10" {
		t.Errorf("endpoint entities = %v, want only 10", g.EntityMap["y"])
	}
}

func TestToSPOPathGroupsObjects(t *testing.T) {
	g := NewKgGraph()
	r1 := relation("42", "knows", "1")
	r1.FromEntity = entity("42", "Alan Turing", "Person", "", 1)
	r1.EndEntity = entity("1", "Alonzo Church", "Person", "", 1)
	r2 := relation("42", "knows", "2")
	r2.FromEntity = r1.FromEntity
	r2.EndEntity = entity("2", "John von Neumann", "Person", "", 1)
	g.AddEdges("p1", SPOPattern{S: "s1", P: "p1", O: "o1"}, []*RelationData{r1, r2})

	got := g.ToSPOPath()
	want := "Alan Turing knows {Alonzo Church, John von Neumann}"
	if got != want {
		t.Errorf("ToSPOPath() = %q, want %q", got, want)
	}
}

func TestRevertSPOKeepsIdentity(t *testing.T) {
	r := relation("a", "r", "b")
	rev := r.RevertSPO()
	if rev.FromID != "b" || rev.EndID != "a" {
		t.Errorf("reverted endpoints = %s->%s, want b->a", rev.FromID, rev.EndID)
	}
	if rev.Key() != r.Key() {
		t.Errorf("reverted key = %q, want original %q", rev.Key(), r.Key())
	}
	if back := rev.RevertSPO(); back.Key() != r.Key() {
		t.Errorf("double revert key = %q, want %q", back.Key(), r.Key())
	}
}

func TestAddEdgesDeduplicatesRevertedEdge(t *testing.T) {
	g := NewKgGraph()
	r := relation("a", "r", "b")
	pattern := SPOPattern{S: "s1", P: "p1", O: "o1"}

	g.AddEdges("p1", pattern, []*RelationData{r})
	g.AddEdges("p1", pattern, []*RelationData{r.RevertSPO()})

	if got := len(g.EdgeMap["p1"]); got != 1 {
		t.Errorf("edge count = %d, want 1 (edge and its revert share identity)", got)
	}
}
