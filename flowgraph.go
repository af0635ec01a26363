package flow

import (
	"fmt"

	"go.uber.org/multierr"
)

// DefaultDomain is the name of the domain for blocks that are not
// assigned explicitly.
const DefaultDomain = "default"

type (
	// Flowgraph is a graph prepared for execution. Blocks are partitioned
	// into domains, every domain is executed by its own scheduler.
	Flowgraph struct {
		*Graph
		name    string
		domains []Domain
	}

	// Domain is a named set of blocks executed by one scheduler.
	Domain struct {
		Name   string
		Blocks []Node
	}

	// DomainBlocks is the resolved assignment of used blocks to a domain.
	DomainBlocks struct {
		Name   string
		Blocks []*Block
	}
)

// NewFlowgraph returns an empty flowgraph.
func NewFlowgraph(name string) *Flowgraph {
	return &Flowgraph{
		Graph: NewGraph(),
		name:  name,
	}
}

// Name returns flowgraph name.
func (fg *Flowgraph) Name() string {
	return fg.name
}

// Partition assigns blocks to domains. A block can belong to one domain
// only. Blocks without domain are executed in DefaultDomain.
func (fg *Flowgraph) Partition(domains ...Domain) error {
	seen := make(map[*Block]string)
	names := make(map[string]bool)
	for _, d := range domains {
		if d.Name == "" || d.Name == DefaultDomain || names[d.Name] {
			return fmt.Errorf("invalid domain name %q", d.Name)
		}
		names[d.Name] = true
		for _, n := range d.Blocks {
			b := n.Base()
			if other, ok := seen[b]; ok {
				return fmt.Errorf("block %s assigned to %s and %s", b.alias, other, d.Name)
			}
			seen[b] = d.Name
			if err := fg.Add(b); err != nil {
				return err
			}
		}
	}
	fg.domains = domains
	return nil
}

// Validate checks connections, resolves item sizes and verifies block
// settings of used blocks.
func (fg *Flowgraph) Validate() error {
	if err := fg.CheckConnections(); err != nil {
		return err
	}
	var err error
	for _, b := range fg.UsedBlocks() {
		if b.outputMultiple < 1 {
			err = multierr.Append(err, fmt.Errorf("block %s: %w: %d", b.alias, ErrInvalidOutputMultiple, b.outputMultiple))
		}
		if b.relativeRate <= 0 {
			err = multierr.Append(err, fmt.Errorf("block %s: %w: %v", b.alias, ErrInvalidRelativeRate, b.relativeRate))
		}
	}
	return err
}

// Partitions returns used blocks grouped by domain in topological order.
// Domains without used blocks are omitted.
func (fg *Flowgraph) Partitions() []DomainBlocks {
	used := fg.UsedBlocks()
	assigned := make(map[*Block]string)
	for _, d := range fg.domains {
		for _, n := range d.Blocks {
			assigned[n.Base()] = d.Name
		}
	}
	var defaults []*Block
	groups := make(map[string][]*Block)
	for _, b := range used {
		if name, ok := assigned[b]; ok {
			groups[name] = append(groups[name], b)
		} else {
			defaults = append(defaults, b)
		}
	}

	var result []DomainBlocks
	if len(defaults) > 0 {
		result = append(result, DomainBlocks{Name: DefaultDomain, Blocks: fg.TopologicalOrder(defaults)})
	}
	for _, d := range fg.domains {
		if blocks := groups[d.Name]; len(blocks) > 0 {
			result = append(result, DomainBlocks{Name: d.Name, Blocks: fg.TopologicalOrder(blocks)})
		}
	}
	return result
}
