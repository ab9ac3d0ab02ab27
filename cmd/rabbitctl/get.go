package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type getOptions struct {
	queue   string
	count   int
	noAck   bool
	requeue bool
}

func newGetCommand(root *rootOptions) *cobra.Command {
	var opts getOptions

	cmd := &cobra.Command{
		Use:   "get [OPTIONS] QUEUE",
		Short: "Fetch messages from a queue with basic.get",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.queue = args[0]
			return runGet(cmd.Context(), root, cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.count, "count", "n", 1, "Maximum number of messages to fetch")
	flags.BoolVar(&opts.noAck, "no-ack", false, "Fetch without acknowledgement")
	flags.BoolVar(&opts.requeue, "requeue", false, "Return the fetched messages to the queue")
	cmd.MarkFlagsMutuallyExclusive("no-ack", "requeue")

	return cmd
}

func runGet(ctx context.Context, root *rootOptions, out, errOut io.Writer, opts getOptions) error {
	if opts.count < 1 {
		return errors.New("count must be at least 1")
	}

	conn, err := root.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.NewChannelWithContext(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	var lastTag uint64
	for i := 0; i < opts.count; i++ {
		msg, err := ch.GetWithContext(ctx, opts.queue, opts.noAck)
		if err != nil {
			return err
		}
		if msg == nil {
			fmt.Fprintf(errOut, "queue %s is empty\n", opts.queue)
			break
		}
		root.logger.Debug().
			Uint64("delivery_tag", msg.DeliveryTag).
			Bool("redelivered", msg.Redelivered).
			Int("remaining", msg.MessageCount).
			Msg("got message")
		fmt.Fprintf(out, "%s\n", msg.Body)

		lastTag = msg.DeliveryTag
		if !opts.noAck && !opts.requeue {
			if err := msg.Ack(); err != nil {
				return err
			}
		}
	}

	// One multiple nack returns everything fetched above.
	if opts.requeue && lastTag != 0 {
		return ch.Nack(lastTag, true, true)
	}
	return nil
}
