package topology

// Snapshot is the serializable form of the graph. Tombstoned slots are
// carried so node indices stay stable across a save/load cycle.
type Snapshot struct {
	Nodes []SnapshotNode
	Edges []SnapshotEdge
}

type SnapshotNode struct {
	Node Node
	Live bool
}

type SnapshotEdge struct {
	Edge Edge
	Live bool
}

// Snapshot captures the graph.
func (g *Graph) Snapshot() Snapshot {
	snap := Snapshot{
		Nodes: make([]SnapshotNode, len(g.nodes)),
		Edges: make([]SnapshotEdge, len(g.edges)),
	}
	for i, slot := range g.nodes {
		snap.Nodes[i] = SnapshotNode{Node: slot.node, Live: slot.live}
	}
	for i, e := range g.edges {
		snap.Edges[i] = SnapshotEdge{Edge: e, Live: g.edgeLive[i]}
	}
	return snap
}

// FromSnapshot rebuilds a graph, restoring indices, adjacency, and the
// path map.
func FromSnapshot(snap Snapshot) *Graph {
	g := NewGraph()
	g.nodes = make([]nodeSlot, len(snap.Nodes))
	for i, sn := range snap.Nodes {
		g.nodes[i] = nodeSlot{node: sn.Node, live: sn.Live}
		if sn.Live {
			g.pathToNode[sn.Node.Path] = NodeIndex(i)
			g.liveNodes++
		}
	}
	g.edges = make([]Edge, len(snap.Edges))
	g.edgeLive = make([]bool, len(snap.Edges))
	for i, se := range snap.Edges {
		g.edges[i] = se.Edge
		g.edgeLive[i] = se.Live
		if se.Live {
			g.out[se.Edge.From] = append(g.out[se.Edge.From], i)
			g.in[se.Edge.To] = append(g.in[se.Edge.To], i)
			g.liveEdges++
		}
	}
	return g
}
