package dag

import (
	"strings"
	"testing"
)

func graphOf(t *testing.T, ops []string, edges ...Edge) *Graph {
	t.Helper()
	g := NewGraph("test")
	for _, op := range ops {
		if err := g.AddStage(StageSpec{Op: op, Source: QuerySource(op)}); err != nil {
			t.Fatalf("AddStage(%s): %v", op, err)
		}
	}
	g.Edges = append(g.Edges, edges...)
	return g
}

func TestBuildLevels_Linear(t *testing.T) {
	g := graphOf(t, []string{"wm", "gmpfId", "gcpfAsin"},
		Edge{From: "wm", To: "gmpfId"},
		Edge{From: "gmpfId", To: "gcpfAsin"},
	)
	levels, err := BuildLevels(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) != 3 || levels[0][0] != "wm" || levels[1][0] != "gmpfId" || levels[2][0] != "gcpfAsin" {
		t.Fatalf("unexpected levels: %v", levels)
	}
}

func TestBuildLevels_Diamond(t *testing.T) {
	g := graphOf(t, []string{"a", "b", "c", "d"},
		Edge{From: "a", To: "b"},
		Edge{From: "a", To: "c"},
		Edge{From: "b", To: "d"},
		Edge{From: "c", To: "d"},
	)
	levels, err := BuildLevels(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %v", levels)
	}
	if strings.Join(levels[1], ",") != "b,c" {
		t.Errorf("expected sorted middle level [b c], got %v", levels[1])
	}
	if levels[2][0] != "d" {
		t.Errorf("expected d last, got %v", levels[2])
	}
}

func TestBuildLevels_DuplicateEdgeCountsOnce(t *testing.T) {
	g := graphOf(t, []string{"a", "b"}, Edge{From: "a", To: "b"}, Edge{From: "a", To: "b"})
	levels, err := BuildLevels(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %v", levels)
	}
}

func TestBuildLevels_Errors(t *testing.T) {
	tests := []struct {
		name  string
		graph *Graph
		want  string
	}{
		{"cycle", graphOf(t, []string{"a", "b"}, Edge{From: "a", To: "b"}, Edge{From: "b", To: "a"}), "cycle detected"},
		{"self loop", graphOf(t, []string{"a"}, Edge{From: "a", To: "a"}), "depends on itself"},
		{"unknown from", graphOf(t, []string{"a"}, Edge{From: "x", To: "a"}), `unknown node "x"`},
		{"unknown to", graphOf(t, []string{"a"}, Edge{From: "a", To: "y"}), `unknown node "y"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildLevels(tc.graph)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestAddStageRejectsDuplicates(t *testing.T) {
	g := NewGraph("dup")
	if err := g.AddStage(StageSpec{Op: "gmfe"}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddStage(StageSpec{Op: "gmfe"}); err == nil {
		t.Fatal("expected duplicate stage error")
	}
	if err := g.AddStage(StageSpec{}); err == nil {
		t.Fatal("expected error for empty operation")
	}
}

func TestUpstreamDownstream(t *testing.T) {
	g := graphOf(t, []string{"gmpfId", "gcpfAsin", "glolfAsin", "gmfe"},
		Edge{From: "gmpfId", To: "glolfAsin"},
		Edge{From: "gmpfId", To: "gcpfAsin"},
		Edge{From: "gcpfAsin", To: "gmfe"},
		Edge{From: "glolfAsin", To: "gmfe"},
	)
	if got := strings.Join(g.Downstream("gmpfId"), ","); got != "gcpfAsin,glolfAsin" {
		t.Errorf("unexpected downstream %s", got)
	}
	if got := strings.Join(g.Upstream("gmfe"), ","); got != "gcpfAsin,glolfAsin" {
		t.Errorf("unexpected upstream %s", got)
	}
	if len(g.Upstream("gmpfId")) != 0 {
		t.Error("root has no upstream")
	}
	if got := strings.Join(g.Ops(), ","); got != "gcpfAsin,glolfAsin,gmfe,gmpfId" {
		t.Errorf("unexpected ops %s", got)
	}
}
