package main

import (
	"flag"
	"fmt"
	"io"
)

type listCommand struct{}

func (cmd *listCommand) Name() string {
	return "list"
}

func (cmd *listCommand) Help() string {
	return "Show the list of available blocks"
}

func (cmd *listCommand) Register(*flag.FlagSet) {}

// blocks lists block constructors with their short description.
var blocks = [][2]string{
	{"wav_source", "reads frames from wav file"},
	{"wav_sink", "writes frames to wav file"},
	{"throttle", "limits items per second, honors rx_rate tags"},
	{"head", "passes first n items"},
	{"copy", "passes items while enabled"},
	{"deinterleave", "splits stream into blocks for several outputs"},
	{"annotator", "tags every n-th item"},
	{"multiply_const", "multiplies items by a constant"},
	{"vector_source", "streams a slice"},
	{"vector_sink", "collects a stream into a slice"},
}

func (cmd *listCommand) Run(w io.Writer) error {
	fmt.Fprintln(w, "Available blocks:")
	for _, b := range blocks {
		fmt.Fprintf(w, "\t%s\t%s\n", b[0], b[1])
	}
	return nil
}
