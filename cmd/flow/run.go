package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"pipelined.dev/flow"
	"pipelined.dev/flow/config"
	"pipelined.dev/flow/log"
	"pipelined.dev/flow/run"
	"pipelined.dev/flow/streamops"
	"pipelined.dev/flow/wav"
)

type runCommand struct {
	config string
	in     string
	out    string
	dump   bool
}

func (cmd *runCommand) Name() string {
	return "run"
}

func (cmd *runCommand) Help() string {
	return "Stream wav file through throttle and head blocks into another wav file"
}

func (cmd *runCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.config, "config", "", "yaml configuration file")
	fs.StringVar(&cmd.in, "in", "", "input wav file (required)")
	fs.StringVar(&cmd.out, "out", "", "output wav file (required)")
	fs.BoolVar(&cmd.dump, "dump", false, "dump configuration and flowgraph before run")
}

func (cmd *runCommand) Validate() error {
	var err error
	if cmd.in == "" {
		err = multierr.Append(err, errors.New("missing -in required flag"))
	}
	if cmd.out == "" {
		err = multierr.Append(err, errors.New("missing -out required flag"))
	}
	return err
}

func (cmd *runCommand) Run(w io.Writer) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	cfg := config.Default()
	if cmd.config != "" {
		var err error
		if cfg, err = config.LoadFile(cmd.config); err != nil {
			return err
		}
	}
	logger, err := log.New(cfg.LogLevel)
	if err != nil {
		return err
	}

	fg, err := cmd.flowgraph(cfg)
	if err != nil {
		return err
	}
	if cmd.dump {
		spew.Fdump(w, cfg)
		for _, part := range fg.Partitions() {
			fmt.Fprintf(w, "domain %s:", part.Name)
			for _, b := range part.Blocks {
				fmt.Fprintf(w, " %s", b.Alias())
			}
			fmt.Fprintln(w)
		}
	}

	reg := prometheus.NewRegistry()
	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	r, err := run.New(ctx, fg, run.WithConfig(cfg), run.WithLogger(logger), run.WithRegisterer(reg))
	if err != nil {
		return err
	}
	logger.WithField("run", r.ID()).Infof("processing %s into %s", cmd.in, cmd.out)
	if err := r.Wait(); err != nil {
		return err
	}
	fmt.Fprintf(w, "Done: %s\n", cmd.out)
	return nil
}

// flowgraph chains wav source, optional throttle and head and wav sink.
func (cmd *runCommand) flowgraph(cfg config.Config) (*flow.Flowgraph, error) {
	source, err := wav.NewSource(cmd.in)
	if err != nil {
		return nil, err
	}
	sink, err := wav.NewSink(cmd.out, source.SampleRate(), source.Channels(), source.BitDepth())
	if err != nil {
		return nil, err
	}
	nodes := []flow.Node{source}
	if cfg.Throttle.SampleRate > 0 {
		nodes = append(nodes, streamops.Throttle(0, cfg.Throttle.SampleRate, cfg.Throttle.IgnoreTags))
	}
	if cfg.Head.Items > 0 {
		nodes = append(nodes, streamops.Head(0, cfg.Head.Items))
	}
	nodes = append(nodes, sink)

	fg := flow.NewFlowgraph("wav")
	if err := fg.Chain(nodes...); err != nil {
		return nil, err
	}
	return fg, nil
}
