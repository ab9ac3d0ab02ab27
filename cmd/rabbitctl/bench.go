package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/israelio/rabbit-blocking-client/rabbitmq"
)

type benchOptions struct {
	channels int
	count    int
	size     string
	confirm  bool
}

func newBenchCommand(root *rootOptions) *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench [OPTIONS]",
		Short: "Measure publish throughput with one channel per goroutine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd.Context(), root, cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.channels, "channels", "c", 4, "Number of publishing channels")
	flags.IntVarP(&opts.count, "count", "n", 1000, "Messages per channel")
	flags.StringVar(&opts.size, "size", "1KiB", "Message body size")
	flags.BoolVar(&opts.confirm, "confirm", false, "Wait for a publisher confirm after each message")

	return cmd
}

func runBench(ctx context.Context, root *rootOptions, out io.Writer, opts benchOptions) error {
	if opts.channels < 1 || opts.count < 1 {
		return errors.New("channels and count must be at least 1")
	}
	size, err := units.RAMInBytes(opts.size)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", opts.size, err)
	}
	if size < 0 {
		return fmt.Errorf("invalid size %q: must not be negative", opts.size)
	}
	msg := rabbitmq.Publishing{Body: bytes.Repeat([]byte{'x'}, int(size))}

	conn, err := root.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	setup, err := conn.NewChannelWithContext(ctx)
	if err != nil {
		return err
	}
	defer setup.Close()

	// The queue goes away with the connection.
	q, err := setup.QueueDeclare("", rabbitmq.QueueOptions{Exclusive: true, AutoDelete: true})
	if err != nil {
		return err
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.channels; i++ {
		g.Go(func() error {
			ch, err := conn.NewChannelWithContext(gctx)
			if err != nil {
				return err
			}
			defer ch.Close()

			if opts.confirm {
				if err := ch.ConfirmDeliveries(); err != nil {
					return err
				}
			}
			for j := 0; j < opts.count; j++ {
				if _, err := ch.PublishWithContext(gctx, "", q.Name, false, false, msg); err != nil {
					return fmt.Errorf("channel %d: %w", ch.ID(), err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	total := opts.channels * opts.count
	perSecond := float64(total) / elapsed.Seconds()
	fmt.Fprintf(out, "%d messages on %d channels in %s: %.0f msg/s, %s/s\n",
		total, opts.channels, elapsed.Round(time.Millisecond),
		perSecond, units.HumanSize(perSecond*float64(size)))
	return nil
}
