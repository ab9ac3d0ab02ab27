package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	metrics "github.com/docker/go-metrics"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/israelio/rabbit-blocking-client/rabbitmq"
)

type consumeOptions struct {
	queue       string
	prefetch    int
	count       int
	autoAck     bool
	exclusive   bool
	metricsAddr string
}

func newConsumeCommand(root *rootOptions) *cobra.Command {
	var opts consumeOptions

	cmd := &cobra.Command{
		Use:   "consume [OPTIONS] QUEUE",
		Short: "Consume messages from a queue until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.queue = args[0]
			return runConsume(cmd.Context(), root, cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.prefetch, "prefetch", 0, "Prefetch count, 0 for unlimited")
	flags.IntVarP(&opts.count, "count", "n", 0, "Stop after this many messages, 0 to run until interrupted")
	flags.BoolVar(&opts.autoAck, "auto-ack", false, "Consume without acknowledgements")
	flags.BoolVar(&opts.exclusive, "exclusive", false, "Request exclusive consumer access")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

func runConsume(ctx context.Context, root *rootOptions, out io.Writer, opts consumeOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var factoryOpts []rabbitmq.FactoryOption
	if opts.metricsAddr != "" {
		collector := rabbitmq.NewPrometheusMetricsCollector("rabbitctl")
		metrics.Register(collector.Namespace)
		defer metrics.Deregister(collector.Namespace)

		srv, _, err := serveMetrics(opts.metricsAddr, root.logger)
		if err != nil {
			return err
		}
		defer srv.Close()
		factoryOpts = append(factoryOpts, rabbitmq.WithMetrics(collector))
	}

	conn, err := root.connect(ctx, factoryOpts...)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.NewChannelWithContext(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if opts.prefetch > 0 {
		if err := ch.Qos(opts.prefetch, 0, false); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var received int
	handler := func(msg *rabbitmq.Message) error {
		fmt.Fprintf(out, "%s\n", msg.Body)
		if !opts.autoAck {
			if err := msg.Ack(); err != nil {
				return err
			}
		}
		received++
		if opts.count > 0 && received >= opts.count {
			cancel()
		}
		return nil
	}

	tag, err := ch.ConsumeWithContext(ctx, opts.queue, "", rabbitmq.ConsumeOptions{
		AutoAck:   opts.autoAck,
		Exclusive: opts.exclusive,
	}, handler)
	if err != nil {
		return err
	}
	root.logger.Info().Str("queue", opts.queue).Str("consumer_tag", tag).Msg("consuming")

	err = ch.StartConsuming(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if ch.IsOpen() {
		if cerr := ch.Cancel(tag); cerr != nil && err == nil {
			err = cerr
		}
	}
	root.logger.Info().Int("received", received).Msg("stopped consuming")
	return err
}

// serveMetrics serves the default Prometheus registry on addr under
// /metrics and returns the bound address.
func serveMetrics(addr string, logger zerolog.Logger) (*http.Server, net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server")
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	return srv, ln.Addr(), nil
}
