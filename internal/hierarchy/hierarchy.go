// Package hierarchy builds the two chain-of-command views the
// dashboard and HTTP API render from a flat list of agent records: the
// worker-grid groups and the pre-ordered tree.
//
// Both builders are pure functions over (agents, root, parents,
// prefix) — no I/O, no mutable package state — so the supervisor's
// refresh pass can call them on every tick without synchronization
// concerns of its own.
package hierarchy

import "github.com/foreman-hq/foreman/internal/health"

// pmPrefix marks a short name as a Project Manager.
const pmPrefix = "pm-"

// unassignedLabel is the synthetic group/tree head for orphan workers.
const unassignedLabel = "Unassigned"

// Agent is the minimal view of a session this package needs. Callers
// pass the full session name (including the configured prefix).
type Agent struct {
	SessionName string
	Health      health.State
	LastOutput  string
}

// ShortName strips the configured prefix from a session name.
func ShortName(sessionName, prefix string) string {
	if prefix == "" {
		return sessionName
	}
	if len(sessionName) >= len(prefix) && sessionName[:len(prefix)] == prefix {
		return sessionName[len(prefix):]
	}
	return sessionName
}

// IsPM reports whether a short name identifies a Project Manager.
func IsPM(shortName string) bool {
	return len(shortName) >= len(pmPrefix) && shortName[:len(pmPrefix)] == pmPrefix
}

// Group is one PM (or the synthetic Unassigned head) and its workers,
// for the worker-grid view.
type Group struct {
	// Head is the PM agent, or nil for the trailing orphan group.
	Head    *Agent
	Workers []Agent
}

// BuildGroups partitions the non-root agents into PM-headed groups plus
// a trailing orphan group. Group order is PM iteration order, orphan
// group last (present only if it has members).
func BuildGroups(agents []Agent, root, prefix string, parents map[string]string) []Group {
	var pmOrder []string
	pmIndex := make(map[string]int)
	pmAgents := make(map[string]Agent)

	for _, a := range agents {
		if a.SessionName == root {
			continue
		}
		short := ShortName(a.SessionName, prefix)
		if IsPM(short) {
			pmIndex[a.SessionName] = len(pmOrder)
			pmOrder = append(pmOrder, a.SessionName)
			pmAgents[a.SessionName] = a
		}
	}

	groups := make([]Group, len(pmOrder))
	for i, pmName := range pmOrder {
		head := pmAgents[pmName]
		groups[i] = Group{Head: &head}
	}

	var orphans []Agent
	for _, a := range agents {
		if a.SessionName == root {
			continue
		}
		short := ShortName(a.SessionName, prefix)
		if IsPM(short) {
			continue
		}
		parent, ok := parents[a.SessionName]
		if ok {
			if idx, isPM := pmIndex[parent]; isPM {
				groups[idx].Workers = append(groups[idx].Workers, a)
				continue
			}
		}
		orphans = append(orphans, a)
	}

	if len(orphans) > 0 {
		groups = append(groups, Group{Head: nil, Workers: orphans})
	}
	return groups
}

// Node is one entry in the flat, pre-ordered [HierarchyTree].
type Node struct {
	DisplayName    string
	SessionName    string
	Health         health.State
	Depth          int
	IsLastSibling  bool
	AncestorIsLast []bool
}

// BuildTree produces the flat pre-ordered node list used to paint the
// chain-of-command: the root at depth 0, PMs at depth 1 in BuildGroups
// order, each PM's workers at depth 2 in their original order, and — if
// any orphans exist — a synthetic Unassigned node at depth 1 followed by
// the orphans at depth 2.
func BuildTree(agents []Agent, root, prefix string, parents map[string]string) []Node {
	groups := BuildGroups(agents, root, prefix, parents)

	rootHealth := health.Idle
	for _, a := range agents {
		if a.SessionName == root {
			rootHealth = a.Health
			break
		}
	}

	nodes := []Node{{
		DisplayName:    ShortName(root, prefix),
		SessionName:    root,
		Health:         rootHealth,
		Depth:          0,
		IsLastSibling:  true,
		AncestorIsLast: nil,
	}}

	for i, g := range groups {
		lastGroup := i == len(groups)-1
		var headName, headDisplay string
		var headHealth health.State
		if g.Head != nil {
			headName = g.Head.SessionName
			headDisplay = ShortName(headName, prefix)
			headHealth = g.Head.Health
		} else {
			headName = ""
			headDisplay = unassignedLabel
			headHealth = health.Idle
		}

		nodes = append(nodes, Node{
			DisplayName:    headDisplay,
			SessionName:    headName,
			Health:         headHealth,
			Depth:          1,
			IsLastSibling:  lastGroup,
			AncestorIsLast: []bool{true},
		})

		for j, w := range g.Workers {
			lastWorker := j == len(g.Workers)-1
			nodes = append(nodes, Node{
				DisplayName:    ShortName(w.SessionName, prefix),
				SessionName:    w.SessionName,
				Health:         w.Health,
				Depth:          2,
				IsLastSibling:  lastWorker,
				AncestorIsLast: []bool{true, lastGroup},
			})
		}
	}

	return nodes
}
