package engine

import (
	"testing"

	"github.com/imagesieve/imagesieve/internal/metric"
)

func TestAssigner_NewGroupForUnassignedPair(t *testing.T) {
	g := NewAssigner(metric.HigherIsBetter, 0.98, 0.93)

	g.Process(Pair{A: 0, B: 1, Score: 0.95})

	a := g.Assignments()
	if a[0].Group != 0 || a[1].Group != 0 {
		t.Errorf("expected both files in group 0, got %+v", a)
	}
	if a[0].Score != 0.95 || a[1].Score != 0.95 {
		t.Errorf("expected both memberships at score 0.95, got %+v", a)
	}
	if g.NextGroup() != 1 {
		t.Errorf("expected next group id 1, got %d", g.NextGroup())
	}
}

func TestAssigner_JoinExistingGroup(t *testing.T) {
	g := NewAssigner(metric.HigherIsBetter, 0.98, 0.93)

	g.Process(Pair{A: 0, B: 1, Score: 0.95})
	g.Process(Pair{A: 0, B: 2, Score: 0.94})

	a := g.Assignments()
	if a[2].Group != a[0].Group {
		t.Errorf("expected file 2 to join file 0's group, got %+v", a)
	}
	if a[2].Score != 0.94 {
		t.Errorf("expected joining score 0.94, got %f", a[2].Score)
	}
	if g.NextGroup() != 1 {
		t.Errorf("join must not mint a new group id, got %d", g.NextGroup())
	}
}

func TestAssigner_DriftSplitsNewGroup(t *testing.T) {
	// A tight cutoff makes the second pair's score drift
	g := NewAssigner(metric.HigherIsBetter, 0.999, 0.01)

	g.Process(Pair{A: 0, B: 1, Score: 0.99})
	g.Process(Pair{A: 0, B: 2, Score: 0.91})

	a := g.Assignments()
	if a[0].Group != a[2].Group {
		t.Errorf("expected drifted pair to share the new group, got %+v", a)
	}
	if a[0].Group == a[1].Group {
		t.Errorf("expected file 0 to abandon its old group, got %+v", a)
	}
	if g.NextGroup() != 2 {
		t.Errorf("expected two group ids minted, got %d", g.NextGroup())
	}
}

func TestAssigner_BothAssignedIsNoop(t *testing.T) {
	g := NewAssigner(metric.HigherIsBetter, 0.999, 0.93)

	g.Process(Pair{A: 0, B: 1, Score: 0.95})
	g.Process(Pair{A: 2, B: 3, Score: 0.95})
	before := g.Assignments()[0]

	// Files 0 and 2 are in different groups; seeing them similar changes
	// nothing
	g.Process(Pair{A: 0, B: 2, Score: 0.99})

	a := g.Assignments()
	if a[0] != before {
		t.Errorf("expected no-op for an already-assigned pair, got %+v", a[0])
	}
	if a[0].Group == a[2].Group {
		t.Error("groups must not merge")
	}
}

func TestAssigner_LowerIsBetterDrift(t *testing.T) {
	g := NewAssigner(metric.LowerIsBetter, 50, 100)

	g.Process(Pair{A: 0, B: 1, Score: 20})
	// Distance grew by 180 with an allowance of 100: split
	g.Process(Pair{A: 0, B: 2, Score: 200})

	a := g.Assignments()
	if a[0].Group == a[1].Group {
		t.Errorf("expected drift split under distance polarity, got %+v", a)
	}
}

func TestAssigner_DuplicateSetIndependentOfGrouping(t *testing.T) {
	// A~B strong, B~C strong, A~C weak: the duplicate set records A-B and
	// B-C while the greedy rules decide membership separately
	g := NewAssigner(metric.HigherIsBetter, 0.98, 0.93)

	g.Process(Pair{A: 0, B: 1, Score: 0.99}) // A~B strong
	g.Process(Pair{A: 1, B: 2, Score: 0.99}) // B~C strong
	g.Process(Pair{A: 0, B: 2, Score: 0.91}) // A~C weak, both already grouped

	files := []string{"a.png", "b.png", "c.png"}
	dups := g.Duplicates(files)
	if len(dups) != 2 {
		t.Fatalf("expected 2 duplicate pairs, got %d: %v", len(dups), dups)
	}
	if dups[0] != [2]string{"a.png", "b.png"} {
		t.Errorf("expected a-b flagged duplicate first, got %v", dups[0])
	}
	if dups[1] != [2]string{"b.png", "c.png"} {
		t.Errorf("expected b-c flagged duplicate second, got %v", dups[1])
	}

	// Greedy outcome: all three share B's group via rule 2, no transitivity
	// reasoning involved
	a := g.Assignments()
	if a[0].Group != a[1].Group || a[1].Group != a[2].Group {
		t.Errorf("expected chained joins into one group, got %+v", a)
	}
}

func TestAssigner_DuplicatePairsDedupedUnordered(t *testing.T) {
	g := NewAssigner(metric.HigherIsBetter, 0.98, 0.93)

	// The rotation scan visits each unordered pair from both directions
	g.Process(Pair{A: 0, B: 1, Score: 0.99})
	g.Process(Pair{A: 1, B: 0, Score: 0.99})

	dups := g.Duplicates([]string{"a.png", "b.png"})
	if len(dups) != 1 {
		t.Errorf("expected 1 deduplicated pair, got %d: %v", len(dups), dups)
	}
}

func TestAssigner_FinalizeDropsSingletons(t *testing.T) {
	g := NewAssigner(metric.HigherIsBetter, 0.999, 0.01)

	g.Process(Pair{A: 0, B: 1, Score: 0.99})
	// Drift: 0 and 2 move to a new group, leaving 1 alone in group 0
	g.Process(Pair{A: 0, B: 2, Score: 0.91})

	files := []string{"a.png", "b.png", "c.png"}
	groups := g.Finalize(files)

	if len(groups) != 1 {
		t.Fatalf("expected 1 reported group, got %d: %v", len(groups), groups)
	}
	members := groups[1]
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %v", members)
	}
	if _, ok := members["b.png"]; ok {
		t.Error("stranded singleton must not be reported")
	}

	// The singleton stays in the raw assignment for checkpoint fidelity
	if _, ok := g.Assignments()[1]; !ok {
		t.Error("singleton must remain in the raw assignment")
	}
}

func TestAssigner_Restore(t *testing.T) {
	g := NewAssigner(metric.HigherIsBetter, 0.98, 0.93)
	g.Restore(map[int]Assignment{
		0: {Group: 3, Score: 0.95},
		1: {Group: 3, Score: 0.94},
	}, 4)

	if g.NextGroup() != 4 {
		t.Errorf("expected restored next group 4, got %d", g.NextGroup())
	}

	// New pairs continue numbering after the restored counter
	g.Process(Pair{A: 5, B: 6, Score: 0.95})
	if g.Assignments()[5].Group != 4 {
		t.Errorf("expected new group id 4 after restore, got %d", g.Assignments()[5].Group)
	}
}
