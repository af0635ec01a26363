package flow

import (
	"go.uber.org/multierr"
)

// CheckConnections validates connections of used blocks and resolves item
// sizes. All found problems are returned combined:
//
//   - required output without connections: ErrNothingConnected;
//   - required stream input without connections: ErrNothingConnected;
//   - stream input with more than one connection: ErrMultipleConnections;
//   - required message input without connections: ErrNothingConnected.
//
// Unresolved item sizes are copied across stream edges and between
// untyped ports of a block until nothing changes. Ports of fully untyped
// components get DefaultItemSize.
func (g *Graph) CheckConnections() error {
	used := g.UsedBlocks()
	if len(used) == 0 {
		return &ConnectionError{Err: ErrNothingConnected}
	}

	var err error
	for _, b := range used {
		for _, p := range b.outputs {
			if !p.optional && len(g.Peers(p)) == 0 {
				err = multierr.Append(err, &ConnectionError{Block: b.alias, Port: p.name, Err: ErrNothingConnected})
			}
		}
		for _, p := range b.inputs {
			n := len(g.Peers(p))
			switch {
			case n == 0 && !p.optional:
				err = multierr.Append(err, &ConnectionError{Block: b.alias, Port: p.name, Err: ErrNothingConnected})
			case n > 1 && p.kind == StreamKind:
				err = multierr.Append(err, &ConnectionError{Block: b.alias, Port: p.name, Err: ErrMultipleConnections})
			}
		}
	}
	if err != nil {
		return err
	}

	g.propagateItemSize(used)
	for _, e := range g.edges {
		src, dst := g.Port(e.Src), g.Port(e.Dst)
		if src.kind == StreamKind && src.itemSize != dst.itemSize {
			err = multierr.Append(err, &ConnectionError{Block: dst.block.alias, Port: dst.name, Err: ErrIncompatiblePorts})
		}
	}
	return err
}

func (g *Graph) propagateItemSize(used []*Block) {
	for changed := true; changed; {
		changed = false
		for _, b := range used {
			if linkUntyped(b) {
				changed = true
			}
		}
		for _, e := range g.edges {
			src, dst := g.Port(e.Src), g.Port(e.Dst)
			if src.kind != StreamKind {
				continue
			}
			switch {
			case src.itemSize == 0 && dst.itemSize != 0:
				src.itemSize, src.format = dst.itemSize, dst.format
				changed = true
			case dst.itemSize == 0 && src.itemSize != 0:
				dst.itemSize, dst.format = src.itemSize, src.format
				changed = true
			}
		}
	}
	for _, b := range used {
		for _, ports := range [][]*Port{b.inputs, b.outputs} {
			for _, p := range ports {
				if p.kind == StreamKind && p.itemSize == 0 {
					p.itemSize, p.format = DefaultItemSize, DefaultFormat
				}
			}
		}
	}
}

// linkUntyped copies resolved item size to unresolved untyped ports of the
// block.
func linkUntyped(b *Block) bool {
	var resolved *Port
	for _, ports := range [][]*Port{b.inputs, b.outputs} {
		for _, p := range ports {
			if p.untyped && p.itemSize != 0 {
				resolved = p
			}
		}
	}
	if resolved == nil {
		return false
	}
	changed := false
	for _, ports := range [][]*Port{b.inputs, b.outputs} {
		for _, p := range ports {
			if p.untyped && p.itemSize == 0 {
				p.itemSize, p.format = resolved.itemSize, resolved.format
				changed = true
			}
		}
	}
	return changed
}
