package hierarchy

import (
	"testing"

	"github.com/foreman-hq/foreman/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const root = "foreman-manager"

func mkAgents(names ...string) []Agent {
	var agents []Agent
	for _, n := range names {
		agents = append(agents, Agent{SessionName: n, Health: health.Running})
	}
	return agents
}

func TestBuildTree_ExactlyOneDepthZeroNode(t *testing.T) {
	agents := append(mkAgents(root), mkAgents("fm-pm-alice", "fm-w1")...)
	parents := map[string]string{"fm-w1": "fm-pm-alice"}
	nodes := BuildTree(agents, root, "fm-", parents)

	var depthZero int
	for _, n := range nodes {
		if n.Depth == 0 {
			depthZero++
		}
	}
	assert.Equal(t, 1, depthZero)
	require.NotEmpty(t, nodes)
	assert.Equal(t, root, nodes[0].SessionName)
}

func TestBuildTree_StaleParentBecomesOrphanNotCrash(t *testing.T) {
	agents := append(mkAgents(root), mkAgents("fm-w1")...)
	parents := map[string]string{"fm-w1": "fm-pm-ghost"} // never existed
	assert.NotPanics(t, func() {
		nodes := BuildTree(agents, root, "fm-", parents)
		var sawUnassigned, sawOrphanAtDepth2 bool
		for i, n := range nodes {
			if n.DisplayName == unassignedLabel {
				sawUnassigned = true
			}
			if n.SessionName == "fm-w1" {
				assert.Equal(t, 2, n.Depth)
				assert.Equal(t, unassignedLabel, nodes[i-1].DisplayName)
				sawOrphanAtDepth2 = true
			}
		}
		assert.True(t, sawUnassigned)
		assert.True(t, sawOrphanAtDepth2)
	})
}

func TestBuildGroups_PartitionsDisjointly(t *testing.T) {
	agents := append(mkAgents(root), mkAgents("fm-pm-a", "fm-pm-b", "fm-w1", "fm-w2", "fm-orphan")...)
	parents := map[string]string{
		"fm-w1": "fm-pm-a",
		"fm-w2": "fm-pm-b",
	}
	groups := BuildGroups(agents, root, "fm-", parents)
	require.Len(t, groups, 3) // pm-a, pm-b, orphan trailing group

	seen := make(map[string]bool)
	for _, g := range groups {
		for _, w := range g.Workers {
			assert.False(t, seen[w.SessionName], "agent %s appeared in more than one group", w.SessionName)
			seen[w.SessionName] = true
		}
	}
	assert.True(t, seen["fm-w1"])
	assert.True(t, seen["fm-w2"])
	assert.True(t, seen["fm-orphan"])

	// Orphan group is last and headless.
	last := groups[len(groups)-1]
	assert.Nil(t, last.Head)
}

func TestBuildTree_DeterministicGivenSameOrdering(t *testing.T) {
	agents := append(mkAgents(root), mkAgents("fm-pm-a", "fm-w1", "fm-w2")...)
	parents := map[string]string{"fm-w1": "fm-pm-a", "fm-w2": "fm-pm-a"}

	first := BuildTree(agents, root, "fm-", parents)
	second := BuildTree(agents, root, "fm-", parents)
	assert.Equal(t, first, second)
}

func TestBuildTree_IsLastSiblingAccountsForOrphanGroup(t *testing.T) {
	agents := append(mkAgents(root), mkAgents("fm-pm-a", "fm-orphan")...)
	parents := map[string]string{} // orphan has no parent entry at all
	nodes := BuildTree(agents, root, "fm-", parents)

	for _, n := range nodes {
		if n.SessionName == "fm-pm-a" {
			assert.False(t, n.IsLastSibling, "pm-a should not be last sibling: an orphan group follows")
		}
		if n.DisplayName == unassignedLabel {
			assert.True(t, n.IsLastSibling)
		}
	}
}

func TestBuildTree_AncestorIsLastHasLengthEqualToDepth(t *testing.T) {
	agents := append(mkAgents(root), mkAgents("fm-pm-a", "fm-w1", "fm-w2")...)
	parents := map[string]string{"fm-w1": "fm-pm-a", "fm-w2": "fm-pm-a"}
	nodes := BuildTree(agents, root, "fm-", parents)

	require.NotEmpty(t, nodes)
	for _, n := range nodes {
		assert.Len(t, n.AncestorIsLast, n.Depth,
			"node %q at depth %d: AncestorIsLast should carry one entry per ancestor, not one per ancestor plus itself",
			n.DisplayName, n.Depth)
	}
}

func TestBuildTree_NoOrphansMeansNoUnassignedNode(t *testing.T) {
	agents := append(mkAgents(root), mkAgents("fm-pm-a", "fm-w1")...)
	parents := map[string]string{"fm-w1": "fm-pm-a"}
	nodes := BuildTree(agents, root, "fm-", parents)
	for _, n := range nodes {
		assert.NotEqual(t, unassignedLabel, n.DisplayName)
	}
}

func TestIsPM(t *testing.T) {
	assert.True(t, IsPM("pm-alice"))
	assert.False(t, IsPM("worker-1"))
	assert.False(t, IsPM("pm")) // too short to carry the trailing "-"
}

func TestShortName_StripsConfiguredPrefix(t *testing.T) {
	assert.Equal(t, "pm-alice", ShortName("fm-pm-alice", "fm-"))
	assert.Equal(t, "standalone", ShortName("standalone", ""))
	assert.Equal(t, "unprefixed", ShortName("unprefixed", "fm-"))
}
