package opcode

import "fmt"

// NodeID is a stable handle into a Graph.
type NodeID int

// NoNode marks an unset edge.
const NoNode NodeID = -1

// Node is one vertex of the instruction graph.
type Node struct {
	Inst Instruction
	Next NodeID
	Line int // source line the instruction was lowered from
}

// Graph is an append-only arena of instruction nodes. Edges are NodeIDs,
// so loop back-edges and shared exit labels need no ownership.
type Graph struct {
	nodes []Node
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// Emit appends a node with no successor and returns its handle.
func (g *Graph) Emit(inst Instruction, line int) NodeID {
	g.nodes = append(g.nodes, Node{Inst: inst, Next: NoNode, Line: line})
	return NodeID(len(g.nodes) - 1)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Valid reports whether id addresses a node of g.
func (g *Graph) Valid(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes)
}

// Node returns the node addressed by id. It panics on an invalid handle.
func (g *Graph) Node(id NodeID) *Node {
	if !g.Valid(id) {
		panic(fmt.Sprintf("opcode: invalid node id %d", id))
	}
	return &g.nodes[id]
}

// SetNext sets the successor edge of id.
func (g *Graph) SetNext(id, next NodeID) {
	g.Node(id).Next = next
}

// SetTarget back-patches the jump target of a Jump or CondJump node.
func (g *Graph) SetTarget(id, target NodeID) error {
	switch inst := g.Node(id).Inst.(type) {
	case *Jump:
		inst.Target = target
	case *CondJump:
		inst.Target = target
	default:
		return fmt.Errorf("opcode: node %d (%T) has no jump target", id, inst)
	}
	return nil
}

// Each calls fn for every node in emission order.
func (g *Graph) Each(fn func(id NodeID, n *Node)) {
	for i := range g.nodes {
		fn(NodeID(i), &g.nodes[i])
	}
}
