package flow

import (
	"fmt"
	"sort"
)

type (
	// PortRef identifies a port by owner block and name.
	PortRef struct {
		Block BlockID
		Port  string
	}

	// Edge connects output port Src to input port Dst.
	Edge struct {
		Src PortRef
		Dst PortRef
	}

	// Graph is an arena of blocks and connections between their ports.
	// Connections are stored as edges by block id, ports and blocks never
	// reference their peers.
	Graph struct {
		blocks []*Block
		edges  []Edge
	}
)

func (r PortRef) String() string {
	return fmt.Sprintf("%d:%s", r.Block, r.Port)
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// Add adds blocks to the graph. Blocks already in the graph are ignored.
func (g *Graph) Add(nodes ...Node) error {
	for _, n := range nodes {
		b := n.Base()
		if b.id != 0 {
			if g.Block(b.id) == b {
				continue
			}
			return fmt.Errorf("block %s belongs to another graph", b.alias)
		}
		g.blocks = append(g.blocks, b)
		b.id = BlockID(len(g.blocks))
	}
	return nil
}

// Block returns block by id.
func (g *Graph) Block(id BlockID) *Block {
	if id < 1 || int(id) > len(g.blocks) {
		return nil
	}
	return g.blocks[id-1]
}

// Blocks returns all blocks in order of addition.
func (g *Graph) Blocks() []*Block {
	return g.blocks
}

// Edges returns all connections.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// Port resolves the reference.
func (g *Graph) Port(r PortRef) *Port {
	b := g.Block(r.Block)
	if b == nil {
		return nil
	}
	return b.Port(r.Port)
}

func ref(p *Port) PortRef {
	return PortRef{Block: p.block.id, Port: p.name}
}

// Connect connects output port src to input port dst. Blocks are added to
// the graph if needed. Ports must have the same kind, and stream ports must
// have equal item sizes if both are already resolved.
func (g *Graph) Connect(src, dst *Port) (Edge, error) {
	if src.block == nil || dst.block == nil {
		return Edge{}, fmt.Errorf("%w: port without block", ErrIncompatiblePorts)
	}
	if src.dir != Output || dst.dir != Input {
		return Edge{}, fmt.Errorf("%w: %v %s to %v %s", ErrIncompatiblePorts, src.dir, src, dst.dir, dst)
	}
	if src.kind != dst.kind {
		return Edge{}, fmt.Errorf("%w: %v %s to %v %s", ErrIncompatiblePorts, src.kind, src, dst.kind, dst)
	}
	if src.kind == StreamKind && src.itemSize != 0 && dst.itemSize != 0 && src.itemSize != dst.itemSize {
		return Edge{}, fmt.Errorf("%w: item size %d of %s and %d of %s", ErrIncompatiblePorts, src.itemSize, src, dst.itemSize, dst)
	}
	if err := g.Add(src.block, dst.block); err != nil {
		return Edge{}, err
	}
	e := Edge{Src: ref(src), Dst: ref(dst)}
	for _, existing := range g.edges {
		if existing == e {
			return Edge{}, fmt.Errorf("%w: %s to %s", ErrAlreadyConnected, src, dst)
		}
	}
	g.edges = append(g.edges, e)
	return e, nil
}

// ConnectBlocks connects ports of two blocks by name.
func (g *Graph) ConnectBlocks(src Node, srcPort string, dst Node, dstPort string) (Edge, error) {
	sp := src.Base().Output(srcPort)
	if sp == nil {
		return Edge{}, fmt.Errorf("%w: output %s of %s", ErrPortNotFound, srcPort, src.Base())
	}
	dp := dst.Base().Input(dstPort)
	if dp == nil {
		return Edge{}, fmt.Errorf("%w: input %s of %s", ErrPortNotFound, dstPort, dst.Base())
	}
	return g.Connect(sp, dp)
}

// Chain connects first stream output of every node to the first stream
// input of the next one.
func (g *Graph) Chain(nodes ...Node) error {
	for i := 1; i < len(nodes); i++ {
		outs := nodes[i-1].Base().StreamOutputs()
		ins := nodes[i].Base().StreamInputs()
		if len(outs) == 0 || len(ins) == 0 {
			return fmt.Errorf("%w: chain %s to %s", ErrPortNotFound, nodes[i-1].Base(), nodes[i].Base())
		}
		if _, err := g.Connect(outs[0], ins[0]); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect removes the connection between src and dst.
func (g *Graph) Disconnect(src, dst *Port) error {
	if src.block == nil || dst.block == nil {
		return ErrNotConnected
	}
	e := Edge{Src: ref(src), Dst: ref(dst)}
	for i := range g.edges {
		if g.edges[i] == e {
			g.edges = append(g.edges[:i], g.edges[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrNotConnected, src, dst)
}

// Peers returns ports connected to p.
func (g *Graph) Peers(p *Port) []*Port {
	if p.block == nil || g.Block(p.block.id) != p.block {
		return nil
	}
	r := ref(p)
	var peers []*Port
	for _, e := range g.edges {
		switch {
		case p.dir == Output && e.Src == r:
			peers = append(peers, g.Port(e.Dst))
		case p.dir == Input && e.Dst == r:
			peers = append(peers, g.Port(e.Src))
		}
	}
	return peers
}

// UsedBlocks returns blocks that have at least one connection, ordered
// by id.
func (g *Graph) UsedBlocks() []*Block {
	used := make(map[BlockID]struct{})
	for _, e := range g.edges {
		used[e.Src.Block] = struct{}{}
		used[e.Dst.Block] = struct{}{}
	}
	blocks := make([]*Block, 0, len(used))
	for id := range used {
		blocks = append(blocks, g.Block(id))
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].id < blocks[j].id })
	return blocks
}

// TopologicalOrder sorts blocks along stream edges. Ties are resolved by
// id. Blocks that are part of a cycle are appended in id order.
func (g *Graph) TopologicalOrder(blocks []*Block) []*Block {
	in := make(map[BlockID]bool, len(blocks))
	for _, b := range blocks {
		in[b.id] = true
	}
	indegree := make(map[BlockID]int, len(blocks))
	next := make(map[BlockID][]BlockID)
	for _, e := range g.edges {
		if !in[e.Src.Block] || !in[e.Dst.Block] || g.Port(e.Src).kind != StreamKind {
			continue
		}
		indegree[e.Dst.Block]++
		next[e.Src.Block] = append(next[e.Src.Block], e.Dst.Block)
	}

	var ready []BlockID
	for _, b := range blocks {
		if indegree[b.id] == 0 {
			ready = append(ready, b.id)
		}
	}
	visited := make(map[BlockID]bool, len(blocks))
	order := make([]*Block, 0, len(blocks))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		id := ready[0]
		ready = ready[1:]
		visited[id] = true
		order = append(order, g.Block(id))
		for _, n := range next[id] {
			indegree[n]--
			if indegree[n] == 0 {
				ready = append(ready, n)
			}
		}
	}
	if len(order) < len(blocks) {
		rest := make([]*Block, 0, len(blocks)-len(order))
		for _, b := range blocks {
			if !visited[b.id] {
				rest = append(rest, b)
			}
		}
		sort.Slice(rest, func(i, j int) bool { return rest[i].id < rest[j].id })
		order = append(order, rest...)
	}
	return order
}
