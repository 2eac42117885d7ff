package engine

import (
	"github.com/imagesieve/imagesieve/internal/metric"
)

// Assignment records a file's current group and the score that earned the
// membership.
type Assignment struct {
	Group int
	Score float64
}

// Assigner is the greedy online clustering state machine. It consumes scored
// pairs in scan order and maintains the index-to-group assignment. Groups
// are never merged: a pair whose members both already belong to groups is a
// no-op, so the result depends on pair visitation order by contract.
type Assigner struct {
	polarity    metric.Polarity
	duplicate   float64
	groupCutoff float64

	assignments map[int]Assignment
	nextGroup   int

	duplicatePairs [][2]int
	duplicateSeen  map[[2]int]struct{}
}

// NewAssigner builds an assigner for one metric polarity. duplicate is the
// strict threshold feeding the probable-duplicate set; groupCutoff is the
// score drift allowance beyond which a member splits into a new group.
func NewAssigner(p metric.Polarity, duplicate, groupCutoff float64) *Assigner {
	return &Assigner{
		polarity:      p,
		duplicate:     duplicate,
		groupCutoff:   groupCutoff,
		assignments:   make(map[int]Assignment),
		duplicateSeen: make(map[[2]int]struct{}),
	}
}

// Restore seeds the assigner from checkpointed state. The probable-duplicate
// set is not checkpointed and restarts empty.
func (g *Assigner) Restore(assignments map[int]Assignment, nextGroup int) {
	g.assignments = make(map[int]Assignment, len(assignments))
	for i, a := range assignments {
		g.assignments[i] = a
	}
	g.nextGroup = nextGroup
}

// Process applies the greedy transition rules to one scored pair. The caller
// guarantees the pair already cleared the related threshold.
func (g *Assigner) Process(p Pair) {
	if metric.Passes(g.polarity, p.Score, g.duplicate) {
		g.recordDuplicate(p.A, p.B)
	}

	a, aAssigned := g.assignments[p.A]
	b, bAssigned := g.assignments[p.B]

	switch {
	case !aAssigned && !bAssigned:
		g.newGroup(p)
	case aAssigned && !bAssigned:
		if metric.Drifted(g.polarity, a.Score, p.Score, g.groupCutoff) {
			g.newGroup(p)
		} else {
			g.assignments[p.B] = Assignment{Group: a.Group, Score: p.Score}
		}
	case !aAssigned && bAssigned:
		if metric.Drifted(g.polarity, b.Score, p.Score, g.groupCutoff) {
			g.newGroup(p)
		} else {
			g.assignments[p.A] = Assignment{Group: b.Group, Score: p.Score}
		}
	default:
		// Both already assigned: no merging
	}
}

func (g *Assigner) newGroup(p Pair) {
	g.assignments[p.A] = Assignment{Group: g.nextGroup, Score: p.Score}
	g.assignments[p.B] = Assignment{Group: g.nextGroup, Score: p.Score}
	g.nextGroup++
}

func (g *Assigner) recordDuplicate(a, b int) {
	key := [2]int{a, b}
	if a > b {
		key = [2]int{b, a}
	}
	if _, ok := g.duplicateSeen[key]; ok {
		return
	}
	g.duplicateSeen[key] = struct{}{}
	g.duplicatePairs = append(g.duplicatePairs, [2]int{a, b})
}

// Assignments exposes the raw index-to-group map, including singleton groups
// that finalization will drop.
func (g *Assigner) Assignments() map[int]Assignment {
	return g.assignments
}

// NextGroup returns the next unused group id.
func (g *Assigner) NextGroup() int {
	return g.nextGroup
}

// Duplicates returns the probable-duplicate pairs resolved to file paths, in
// first-seen order, deduplicated by unordered pair identity.
func (g *Assigner) Duplicates(files []string) [][2]string {
	pairs := make([][2]string, 0, len(g.duplicatePairs))
	for _, p := range g.duplicatePairs {
		if p[0] >= len(files) || p[1] >= len(files) {
			continue
		}
		pairs = append(pairs, [2]string{files[p[0]], files[p[1]]})
	}
	return pairs
}

// Finalize rebuilds the group-to-members view from the assignment map and
// drops groups with fewer than two members from the reported result. The
// dropped stragglers stay in the raw assignment for checkpoint fidelity.
func (g *Assigner) Finalize(files []string) map[int]map[string]float64 {
	groups := make(map[int]map[string]float64)
	for index, a := range g.assignments {
		if index >= len(files) {
			continue
		}
		members, ok := groups[a.Group]
		if !ok {
			members = make(map[string]float64)
			groups[a.Group] = members
		}
		members[files[index]] = a.Score
	}

	for id, members := range groups {
		if len(members) < 2 {
			delete(groups, id)
		}
	}
	return groups
}
