package logicform

import (
	"testing"
)

func TestParseRetrieval(t *testing.T) {
	p := NewParser()
	node, err := p.Parse("Retrieval(s=s1:Person[`Alan Turing`], p=p1:birthYear, o=o1:Year)")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	ret, ok := node.(*RetrievalNode)
	if !ok {
		t.Fatalf("Parse() = %T, want *RetrievalNode", node)
	}

	if ret.Subject.Alias != "s1" {
		t.Errorf("subject alias = %q, want s1", ret.Subject.Alias)
	}
	if ret.Subject.Name != "Alan Turing" {
		t.Errorf("subject name = %q, want Alan Turing", ret.Subject.Name)
	}
	if got := ret.Subject.TypeLabels(); len(got) != 1 || got[0] != "Person" {
		t.Errorf("subject types = %v, want [Person]", got)
	}
	if ret.Predicate.Alias != "p1" {
		t.Errorf("predicate alias = %q, want p1", ret.Predicate.Alias)
	}
	if got := ret.Predicate.TypeLabels(); len(got) != 1 || got[0] != "birthYear" {
		t.Errorf("predicate types = %v, want [birthYear]", got)
	}
	if ret.Object.Alias != "o1" {
		t.Errorf("object alias = %q, want o1", ret.Object.Alias)
	}
	if got := ret.Object.TypeLabels(); len(got) != 1 || got[0] != "Year" {
		t.Errorf("object types = %v, want [Year]", got)
	}
	if ret.Predicate.Subject != ret.Subject || ret.Predicate.Object != ret.Object {
		t.Error("predicate endpoints not wired to subject/object")
	}
}

func TestParseEntityRefRoundTrip(t *testing.T) {
	tests := []string{
		"s1:Person[`Alan Turing`]",
		"o1:Year",
		"x2:TypeA|TypeB",
		"e3",
	}
	for _, ref := range tests {
		t.Run(ref, func(t *testing.T) {
			p := NewParser()
			ent, err := p.parseEntityRef(ref)
			if err != nil {
				t.Fatalf("parseEntityRef() error = %v", err)
			}
			if got := ent.String(); got != ref {
				t.Errorf("String() = %q, want %q", got, ref)
			}
		})
	}
}

func TestParseEscapedName(t *testing.T) {
	p := NewParser()
	ent, err := p.parseEntityRef("s1:Film[`Cat``Dog`]")
	if err != nil {
		t.Fatalf("parseEntityRef() error = %v", err)
	}
	if ent.Name != "Cat|Dog" {
		t.Errorf("name = %q, want Cat|Dog", ent.Name)
	}
}

func TestParseIDSet(t *testing.T) {
	p := NewParser()
	ent, err := p.parseEntityRef("s1:Person[id-1|id-2]")
	if err != nil {
		t.Fatalf("parseEntityRef() error = %v", err)
	}
	if len(ent.IDSet) != 2 || ent.IDSet[0] != "id-1" || ent.IDSet[1] != "id-2" {
		t.Errorf("id set = %v, want [id-1 id-2]", ent.IDSet)
	}
	if ent.Name != "" {
		t.Errorf("name = %q, want empty", ent.Name)
	}
}

func TestParseConstraints(t *testing.T) {
	p := NewParser()
	node, err := p.Parse("Retrieval(s=s1:Person, p=p1:actedIn, o=o1:Film, o1.year>=1950, o1.rating>8)")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	ret := node.(*RetrievalNode)
	if len(ret.Object.Constraints) != 2 {
		t.Fatalf("object constraints = %d, want 2", len(ret.Object.Constraints))
	}
	c0 := ret.Object.Constraints[0]
	if c0.Prop != "year" || c0.Op != OpGreaterEqual || c0.Value != "1950" {
		t.Errorf("constraint 0 = %+v, want year >= 1950", c0)
	}
	c1 := ret.Object.Constraints[1]
	if c1.Prop != "rating" || c1.Op != OpGreater || c1.Value != "8" {
		t.Errorf("constraint 1 = %+v, want rating > 8", c1)
	}
}

func TestAliasResolvesToSameVariable(t *testing.T) {
	p := NewParser()
	first, err := p.Parse("Retrieval(s=s1:Person[`Alan Turing`], p=p1:knows, o=o1:Person)")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	second, err := p.Parse("Retrieval(s=o1, p=p2:bornIn, o=o2:City)")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	obj := first.(*RetrievalNode).Object
	subj := second.(*RetrievalNode).Subject
	if obj != subj {
		t.Error("alias o1 bound twice instead of resolving to the same variable")
	}
	if got := subj.TypeLabels(); len(got) != 1 || got[0] != "Person" {
		t.Errorf("resolved types = %v, want [Person]", got)
	}
}

func TestParseMath(t *testing.T) {
	p := NewParser()
	node, err := p.Parse("Math(content=[`o1` - `o2`], target=the age difference)->m1")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	m, ok := node.(*MathNode)
	if !ok {
		t.Fatalf("Parse() = %T, want *MathNode", node)
	}
	if m.Content != "`o1` - `o2`" {
		t.Errorf("content = %q", m.Content)
	}
	if m.Target != "the age difference" {
		t.Errorf("target = %q", m.Target)
	}
	if m.Alias != "m1" {
		t.Errorf("alias = %q, want m1", m.Alias)
	}
}

func TestParseDeduce(t *testing.T) {
	p := NewParser()
	node, err := p.Parse("Deduce(op=judgement, content=[is `o1` greater than 10], target=yes or no)->d1")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	d, ok := node.(*DeduceNode)
	if !ok {
		t.Fatalf("Parse() = %T, want *DeduceNode", node)
	}
	if d.Op != DeduceJudgement {
		t.Errorf("op = %q, want judgement", d.Op)
	}
	if d.Alias != "d1" {
		t.Errorf("alias = %q, want d1", d.Alias)
	}
}

func TestParseOutput(t *testing.T) {
	p := NewParser()
	node, err := p.Parse("Output(o1, m1)")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	o, ok := node.(*OutputNode)
	if !ok {
		t.Fatalf("Parse() = %T, want *OutputNode", node)
	}
	if len(o.Aliases) != 2 || o.Aliases[0] != "o1" || o.Aliases[1] != "m1" {
		t.Errorf("aliases = %v, want [o1 m1]", o.Aliases)
	}
}

func TestParseAllDropsMalformedSteps(t *testing.T) {
	p := NewParser()
	nodes := p.ParseAll([]string{
		"Retrieval(s=s1:Person, p=p1:knows, o=o1:Person)",
		"Nonsense(s=s1)",
		"Retrieval(s=o1, p=p2:bornIn",
		"Output(o1)",
	})
	if len(nodes) != 2 {
		t.Fatalf("ParseAll() kept %d nodes, want 2", len(nodes))
	}
	if nodes[0].Kind() != KindRetrieval || nodes[1].Kind() != KindOutput {
		t.Errorf("kept kinds = %v, %v", nodes[0].Kind(), nodes[1].Kind())
	}
}

func TestParseWithTypeMap(t *testing.T) {
	p := NewParser(WithTypeMap(map[string]string{"Person": "sem.Person"}))
	ent, err := p.parseEntityRef("s1:Person")
	if err != nil {
		t.Fatalf("parseEntityRef() error = %v", err)
	}
	if ent.Types[0].Std != "sem.Person" || ent.Types[0].UnStd != "Person" {
		t.Errorf("type = %+v, want std sem.Person, unstd Person", ent.Types[0])
	}
	if got := ent.TypeLabels(); got[0] != "sem.Person" {
		t.Errorf("label = %q, want sem.Person", got[0])
	}
}
