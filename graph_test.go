package flow_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/flow"
)

type nop struct{}

func (nop) Work([]*flow.WorkInput, []*flow.WorkOutput) (flow.WorkStatus, error) {
	return flow.WorkOK, nil
}

func source(name string, out *flow.Port) *flow.Block {
	return flow.NewBlock(name, nop{}, flow.Outputs(out))
}

func sink(name string, in *flow.Port) *flow.Block {
	return flow.NewBlock(name, nop{}, flow.Inputs(in))
}

func through(name string, in, out *flow.Port) *flow.Block {
	return flow.NewBlock(name, nop{}, flow.Inputs(in), flow.Outputs(out))
}

func TestConnect(t *testing.T) {
	src := source("src", flow.Typed[float32]("out", flow.Output))
	dst := sink("dst", flow.Typed[float32]("in", flow.Input))
	wide := sink("wide", flow.Typed[float64]("in", flow.Input))
	msg := sink("msg", flow.MessagePort("in", flow.Input))

	g := flow.NewGraph()
	e, err := g.Connect(src.Output("out"), dst.Input("in"))
	require.NoError(t, err)
	assert.Equal(t, flow.PortRef{Block: src.ID(), Port: "out"}, e.Src)
	assert.Equal(t, flow.PortRef{Block: dst.ID(), Port: "in"}, e.Dst)

	_, err = g.Connect(src.Output("out"), dst.Input("in"))
	assert.ErrorIs(t, err, flow.ErrAlreadyConnected)
	_, err = g.Connect(dst.Input("in"), src.Output("out"))
	assert.ErrorIs(t, err, flow.ErrIncompatiblePorts)
	_, err = g.Connect(src.Output("out"), wide.Input("in"))
	assert.ErrorIs(t, err, flow.ErrIncompatiblePorts)
	_, err = g.Connect(src.Output("out"), msg.Input("in"))
	assert.ErrorIs(t, err, flow.ErrIncompatiblePorts)
	_, err = g.ConnectBlocks(src, "missing", dst, "in")
	assert.ErrorIs(t, err, flow.ErrPortNotFound)

	assert.Equal(t, []*flow.Port{dst.Input("in")}, g.Peers(src.Output("out")))
	assert.Equal(t, []*flow.Port{src.Output("out")}, g.Peers(dst.Input("in")))

	require.NoError(t, g.Disconnect(src.Output("out"), dst.Input("in")))
	assert.ErrorIs(t, g.Disconnect(src.Output("out"), dst.Input("in")), flow.ErrNotConnected)
	assert.Empty(t, g.Peers(src.Output("out")))
}

func TestBlockInTwoGraphs(t *testing.T) {
	b := source("src", flow.Typed[float32]("out", flow.Output))
	require.NoError(t, flow.NewGraph().Add(b))
	other := flow.NewGraph()
	require.NoError(t, other.Add(source("other", flow.Typed[float32]("out", flow.Output))))
	assert.Error(t, other.Add(b))
}

func TestCheckConnections(t *testing.T) {
	t.Run("nothing connected", func(t *testing.T) {
		g := flow.NewGraph()
		require.NoError(t, g.Add(source("src", flow.Typed[float32]("out", flow.Output))))
		assert.ErrorIs(t, g.CheckConnections(), flow.ErrNothingConnected)
	})
	t.Run("unconnected required output", func(t *testing.T) {
		g := flow.NewGraph()
		src := flow.NewBlock("src", nop{}, flow.Outputs(
			flow.Typed[float32]("out0", flow.Output),
			flow.Typed[float32]("out1", flow.Output),
		))
		_, err := g.ConnectBlocks(src, "out0", sink("dst", flow.Typed[float32]("in", flow.Input)), "in")
		require.NoError(t, err)
		err = g.CheckConnections()
		assert.ErrorIs(t, err, flow.ErrNothingConnected)
		var ce *flow.ConnectionError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "out1", ce.Port)
	})
	t.Run("optional output", func(t *testing.T) {
		g := flow.NewGraph()
		src := flow.NewBlock("src", nop{}, flow.Outputs(
			flow.Typed[float32]("out0", flow.Output),
			flow.Typed[float32]("out1", flow.Output, flow.Optional()),
		))
		_, err := g.ConnectBlocks(src, "out0", sink("dst", flow.Typed[float32]("in", flow.Input)), "in")
		require.NoError(t, err)
		assert.NoError(t, g.CheckConnections())
	})
	t.Run("unconnected stream input", func(t *testing.T) {
		g := flow.NewGraph()
		dst := flow.NewBlock("dst", nop{}, flow.Inputs(
			flow.Typed[float32]("in0", flow.Input),
			flow.Typed[float32]("in1", flow.Input),
		))
		_, err := g.ConnectBlocks(source("src", flow.Typed[float32]("out", flow.Output)), "out", dst, "in0")
		require.NoError(t, err)
		assert.ErrorIs(t, g.CheckConnections(), flow.ErrNothingConnected)
	})
	t.Run("multiple stream connections", func(t *testing.T) {
		g := flow.NewGraph()
		dst := sink("dst", flow.Typed[float32]("in", flow.Input))
		for _, name := range []string{"a", "b"} {
			_, err := g.ConnectBlocks(source(name, flow.Typed[float32]("out", flow.Output)), "out", dst, "in")
			require.NoError(t, err)
		}
		assert.ErrorIs(t, g.CheckConnections(), flow.ErrMultipleConnections)
	})
	t.Run("message input with many connections", func(t *testing.T) {
		g := flow.NewGraph()
		dst := sink("dst", flow.MessagePort("in", flow.Input))
		for _, name := range []string{"a", "b"} {
			_, err := g.ConnectBlocks(source(name, flow.MessagePort("out", flow.Output)), "out", dst, "in")
			require.NoError(t, err)
		}
		assert.NoError(t, g.CheckConnections())
	})
	t.Run("unconnected message input", func(t *testing.T) {
		g := flow.NewGraph()
		dst := flow.NewBlock("dst", nop{}, flow.Inputs(
			flow.Typed[float32]("in", flow.Input),
			flow.MessagePort("ctrl", flow.Input),
		))
		_, err := g.ConnectBlocks(source("src", flow.Typed[float32]("out", flow.Output)), "out", dst, "in")
		require.NoError(t, err)
		assert.ErrorIs(t, g.CheckConnections(), flow.ErrNothingConnected)
	})
}

func TestItemSizePropagation(t *testing.T) {
	g := flow.NewGraph()
	src := source("src", flow.Typed[int16]("out", flow.Output, flow.Shape(2)))
	blocks := []flow.Node{src}
	for i := 0; i < 5; i++ {
		blocks = append(blocks, through("copy", flow.Untyped("in", flow.Input), flow.Untyped("out", flow.Output)))
	}
	for i := 1; i < len(blocks); i++ {
		_, err := g.ConnectBlocks(blocks[i-1], "out", blocks[i], "in")
		require.NoError(t, err)
	}
	last := sink("dst", flow.Typed[int16]("in", flow.Input, flow.Shape(2)))
	_, err := g.ConnectBlocks(blocks[len(blocks)-1], "out", last, "in")
	require.NoError(t, err)

	require.NoError(t, g.CheckConnections())
	for _, n := range blocks[1:] {
		b := n.Base()
		assert.Equal(t, 4, b.Input("in").ItemSize())
		assert.Equal(t, "h", b.Input("in").Format())
		assert.Equal(t, 4, b.Output("out").ItemSize())
	}
}

func TestItemSizeChain(t *testing.T) {
	// single typed end, every untyped edge resolves from its peer
	g := flow.NewGraph()
	src := source("src", flow.Typed[complex128]("out", flow.Output))
	dst := sink("dst", flow.Untyped("in", flow.Input))
	_, err := g.Connect(src.Output("out"), dst.Input("in"))
	require.NoError(t, err)
	require.NoError(t, g.CheckConnections())
	assert.Equal(t, 16, dst.Input("in").ItemSize())
	assert.Equal(t, "Zd", dst.Input("in").Format())
}

func TestItemSizeDefault(t *testing.T) {
	g := flow.NewGraph()
	src := source("src", flow.Untyped("out", flow.Output))
	mid := through("mid", flow.Untyped("in", flow.Input), flow.Untyped("out", flow.Output))
	dst := sink("dst", flow.Untyped("in", flow.Input))
	require.NoError(t, g.Chain(src, mid, dst))
	require.NoError(t, g.CheckConnections())
	for _, p := range []*flow.Port{src.Output("out"), mid.Input("in"), mid.Output("out"), dst.Input("in")} {
		assert.Equal(t, flow.DefaultItemSize, p.ItemSize())
		assert.Equal(t, flow.DefaultFormat, p.Format())
	}
}

func TestTopologicalOrder(t *testing.T) {
	g := flow.NewGraph()
	dst := sink("dst", flow.Typed[float32]("in", flow.Input))
	mid := through("mid", flow.Typed[float32]("in", flow.Input), flow.Typed[float32]("out", flow.Output))
	src := source("src", flow.Typed[float32]("out", flow.Output))
	// add in reverse to make sure ids do not define the order
	require.NoError(t, g.Add(dst, mid, src))
	require.NoError(t, g.Chain(src, mid, dst))
	order := g.TopologicalOrder(g.UsedBlocks())
	assert.Equal(t, []*flow.Block{src, mid, dst}, order)
}

func TestFlowgraphValidate(t *testing.T) {
	fg := flow.NewFlowgraph("test")
	src := source("src", flow.Typed[float32]("out", flow.Output))
	dst := flow.NewBlock("dst", nop{}, flow.Inputs(flow.Typed[float32]("in", flow.Input)), flow.OutputMultiple(0))
	require.NoError(t, fg.Chain(src, dst))
	assert.ErrorIs(t, fg.Validate(), flow.ErrInvalidOutputMultiple)
	require.NoError(t, dst.SetOutputMultiple(1))
	assert.NoError(t, fg.Validate())
	assert.ErrorIs(t, dst.SetOutputMultiple(0), flow.ErrInvalidOutputMultiple)
}

func TestPartitions(t *testing.T) {
	fg := flow.NewFlowgraph("test")
	src := source("src", flow.Typed[float32]("out", flow.Output))
	mid := through("mid", flow.Typed[float32]("in", flow.Input), flow.Typed[float32]("out", flow.Output))
	dst := sink("dst", flow.Typed[float32]("in", flow.Input))
	require.NoError(t, fg.Chain(src, mid, dst))
	require.NoError(t, fg.Partition(flow.Domain{Name: "io", Blocks: []flow.Node{src, dst}}))

	parts := fg.Partitions()
	require.Len(t, parts, 2)
	assert.Equal(t, flow.DefaultDomain, parts[0].Name)
	assert.Equal(t, []*flow.Block{mid}, parts[0].Blocks)
	assert.Equal(t, "io", parts[1].Name)
	assert.Equal(t, []*flow.Block{src, dst}, parts[1].Blocks)

	assert.Error(t, fg.Partition(
		flow.Domain{Name: "a", Blocks: []flow.Node{src}},
		flow.Domain{Name: "b", Blocks: []flow.Node{src}},
	))
	assert.Error(t, fg.Partition(flow.Domain{Name: flow.DefaultDomain}))
}
