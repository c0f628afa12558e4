package kg

import "testing"

func TestPropLinkedRefs(t *testing.T) {
	p := NewProp()
	p.SetOrigin("spouse", "married to [[ent-7]] since 1942")

	refs, ok := p.LinkedPropMap["spouse"]
	if !ok || len(refs) != 1 || refs[0] != "ent-7" {
		t.Fatalf("linked refs = %v, want [ent-7]", refs)
	}
	got, _ := p.Get("spouse")
	if got != "married to ent-7 since 1942" {
		t.Errorf("Get() = %q, markers should be stripped", got)
	}
}

func TestPropNestedJSONExtends(t *testing.T) {
	p := NewProp()
	p.SetOrigin("basicInfo", `{"birthPlace": "London", "occupation": "mathematician"}`)

	if v, ok := p.Get("birthPlace"); !ok || v != "London" {
		t.Errorf("extended prop birthPlace = %q, %v", v, ok)
	}
}

func TestPropMergeKeepsExisting(t *testing.T) {
	a := NewProp()
	a.SetOrigin("k", "v1")
	b := NewProp()
	b.SetOrigin("k", "v2")
	b.SetOrigin("extra", "e")

	a.MergeFrom(b)

	if v, _ := a.Get("k"); v != "v1" {
		t.Errorf("k = %q, existing value should win", v)
	}
	if v, _ := a.Get("extra"); v != "e" {
		t.Errorf("extra = %q, want e", v)
	}
}
