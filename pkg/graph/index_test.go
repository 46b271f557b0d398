package graph

import (
	"testing"

	"github.com/ritzau/emotion-graph/pkg/model"
	"github.com/ritzau/emotion-graph/pkg/tabular"
)

func buildLinks(t *testing.T, pairs ...[2]string) *model.Graph {
	t.Helper()
	rows := make([]tabular.Row, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, tabular.Row{"source": p[0], "target": p[1]})
	}
	return Build(rows, nil, "").Graph
}

func TestFindLinkEitherDirection(t *testing.T) {
	g := buildLinks(t, [2]string{"a", "b"}, [2]string{"b", "c"}, [2]string{"c", "b"})
	ix := NewIndex(g)

	if i, ok := ix.FindLink("b", "a"); !ok || i != 0 {
		t.Errorf("FindLink(b, a) = %d, %v; want 0, true", i, ok)
	}
	if i, ok := ix.FindLink("c", "b"); !ok || i != 1 {
		t.Errorf("FindLink(c, b) = %d, %v; want first matching link 1", i, ok)
	}
	if _, ok := ix.FindLink("a", "c"); ok {
		t.Error("FindLink(a, c) should miss")
	}
}

func TestDegreeCountsDuplicates(t *testing.T) {
	g := buildLinks(t, [2]string{"a", "b"}, [2]string{"a", "b"}, [2]string{"c", "a"})
	ix := NewIndex(g)

	in, out := ix.Degree("a")
	if in != 1 || out != 2 {
		t.Errorf("Degree(a) = %d, %d; want 1, 2", in, out)
	}
	if in, out := ix.Degree("missing"); in != 0 || out != 0 {
		t.Errorf("Degree(missing) = %d, %d", in, out)
	}
}

func TestNeighborsInNodeOrder(t *testing.T) {
	g := buildLinks(t, [2]string{"a", "b"}, [2]string{"c", "a"}, [2]string{"a", "a"}, [2]string{"d", "e"})
	ix := NewIndex(g)

	got := ix.Neighbors("a")
	want := []string{"b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Neighbors(a) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Neighbors(a)[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestComponents(t *testing.T) {
	g := buildLinks(t, [2]string{"a", "b"}, [2]string{"b", "c"}, [2]string{"d", "e"})
	if n := NewIndex(g).Components(); n != 2 {
		t.Errorf("Components() = %d, want 2", n)
	}
	if n := NewIndex(model.NewGraph("")).Components(); n != 0 {
		t.Errorf("empty graph Components() = %d, want 0", n)
	}
}

func TestStronglyConnectedGroups_NoCycles(t *testing.T) {
	g := buildLinks(t, [2]string{"a", "b"}, [2]string{"b", "c"})
	if groups := NewIndex(g).StronglyConnectedGroups(); len(groups) != 0 {
		t.Errorf("Expected no groups, got %v", groups)
	}
}

func TestStronglyConnectedGroups_Cycles(t *testing.T) {
	g := buildLinks(t,
		[2]string{"a", "b"}, [2]string{"b", "a"},
		[2]string{"x", "y"}, [2]string{"y", "z"}, [2]string{"z", "x"},
		[2]string{"z", "q"},
	)
	groups := NewIndex(g).StronglyConnectedGroups()
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %v", groups)
	}
	if len(groups[0]) != 2 || groups[0][0] != "a" || groups[0][1] != "b" {
		t.Errorf("first group = %v, want [a b]", groups[0])
	}
	if len(groups[1]) != 3 || groups[1][0] != "x" {
		t.Errorf("second group = %v, want [x y z]", groups[1])
	}
}

func TestStronglyConnectedGroups_SelfLinksAndMemberOrder(t *testing.T) {
	g := buildLinks(t,
		[2]string{"a", "a"},
		[2]string{"c", "d"}, [2]string{"d", "b"}, [2]string{"b", "c"},
	)
	groups := NewIndex(g).StronglyConnectedGroups()
	if len(groups) != 1 {
		t.Fatalf("Expected 1 group, got %v", groups)
	}
	want := []string{"c", "d", "b"}
	for k, id := range want {
		if groups[0][k] != id {
			t.Fatalf("group = %v, want %v in node order", groups[0], want)
		}
	}
}
