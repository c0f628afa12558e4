package memory

import (
	"context"
	"testing"

	"github.com/OFFIS-RIT/moa/backend/pkg/graphstore"
	"github.com/OFFIS-RIT/moa/backend/pkg/kg"
)

func seedStore() *Store {
	s := NewStore()
	s.AddEntity(&kg.EntityData{BizID: "turing", Name: "Alan Turing", Type: "Person", Score: 1}, map[string][]float32{
		"name": {1, 0, 0},
	})
	s.AddEntity(&kg.EntityData{BizID: "1912", Name: "1912", Type: "Year", Score: 1}, nil)
	s.AddEntity(&kg.EntityData{BizID: "london", Name: "London", Type: "City", Score: 1}, nil)
	s.AddRelation(&kg.RelationData{FromID: "turing", EndID: "1912", FromType: "Person", EndType: "Year", Type: "birthYear", Score: 1})
	s.AddRelation(&kg.RelationData{FromID: "turing", EndID: "london", FromType: "Person", EndType: "City", Type: "bornIn", Score: 1})
	s.AddChunk(&graphstore.Chunk{ID: "c1", Title: "Turing bio", Content: "Alan Turing was born in 1912 in London."}, []float32{1, 0, 0}, []string{"turing"})
	s.AddChunk(&graphstore.Chunk{ID: "c2", Title: "Unrelated", Content: "Weather patterns in the Atlantic."}, []float32{0, 1, 0}, nil)
	return s
}

func TestExecuteDSLFiltersPattern(t *testing.T) {
	s := seedStore()
	res, err := s.ExecuteDSL(context.Background(), graphstore.DSLQuery{
		SubjectLabels: []string{"Person"},
		Predicate:     "birthYear",
		ObjectLabels:  []string{"Year"},
	})
	if err != nil {
		t.Fatalf("ExecuteDSL() error = %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(res.Rows))
	}
	obj, ok := res.Rows[0][2].(*kg.EntityData)
	if !ok || obj.Name != "1912" {
		t.Errorf("object cell = %#v, want entity 1912", res.Rows[0][2])
	}
}

func TestExecuteDSLAnyLabel(t *testing.T) {
	s := seedStore()
	res, err := s.ExecuteDSL(context.Background(), graphstore.DSLQuery{
		SubjectLabels: []string{"WrongLabel"},
		Predicate:     "bornIn",
		AnyLabel:      true,
	})
	if err != nil {
		t.Fatalf("ExecuteDSL() error = %v", err)
	}
	if len(res.Rows) != 1 {
		t.Errorf("rows = %d, want the label restriction ignored", len(res.Rows))
	}
}

func TestGetEntityOneHop(t *testing.T) {
	s := seedStore()
	hop, err := s.GetEntityOneHop(context.Background(), &kg.EntityData{BizID: "turing", Type: "Person"})
	if err != nil {
		t.Fatalf("GetEntityOneHop() error = %v", err)
	}
	if len(hop.OutRelations) != 2 {
		t.Errorf("out predicates = %d, want 2", len(hop.OutRelations))
	}
	if len(hop.InRelations) != 0 {
		t.Errorf("in predicates = %d, want 0", len(hop.InRelations))
	}
}

func TestCalculatePageRankScoresReachesChunks(t *testing.T) {
	s := seedStore()
	scores, err := s.CalculatePageRankScores(context.Background(), graphstore.ChunkLabel, []graphstore.StartNode{{ID: "turing", Type: "Person"}})
	if err != nil {
		t.Fatalf("CalculatePageRankScores() error = %v", err)
	}
	if scores["c1"] <= 0 {
		t.Errorf("chunk c1 score = %v, want > 0", scores["c1"])
	}
	if _, ok := scores["c2"]; ok {
		t.Errorf("chunk c2 scored %v, but is unreachable from the seed", scores["c2"])
	}
}

func TestSearchVectorRanksBySimilarity(t *testing.T) {
	s := seedStore()
	res, err := s.SearchVector(context.Background(), graphstore.ChunkLabel, "content", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SearchVector() error = %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("results = %d, want 2", len(res))
	}
	if res[0].Chunk.ID != "c1" {
		t.Errorf("top hit = %s, want c1", res[0].Chunk.ID)
	}
	if res[0].Score <= res[1].Score {
		t.Errorf("scores not descending: %v then %v", res[0].Score, res[1].Score)
	}
}

func TestSearchTextFindsChunk(t *testing.T) {
	s := seedStore()
	res, err := s.SearchText(context.Background(), "Turing London", nil, 1)
	if err != nil {
		t.Fatalf("SearchText() error = %v", err)
	}
	if len(res) != 1 || res[0].Chunk.ID != "c1" {
		t.Fatalf("results = %v, want only c1", res)
	}
}

func TestGetChunksPreservesOrder(t *testing.T) {
	s := seedStore()
	chunks, err := s.GetChunks(context.Background(), []string{"c2", "missing", "c1"})
	if err != nil {
		t.Fatalf("GetChunks() error = %v", err)
	}
	if len(chunks) != 2 || chunks[0].ID != "c2" || chunks[1].ID != "c1" {
		t.Errorf("chunks = %v, want [c2 c1]", chunks)
	}
}
