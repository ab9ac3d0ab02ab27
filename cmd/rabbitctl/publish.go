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
	"golang.org/x/time/rate"

	"github.com/israelio/rabbit-blocking-client/rabbitmq"
)

type publishOptions struct {
	exchange    string
	routingKey  string
	body        string
	size        string
	contentType string
	count       int
	rate        float64
	confirm     bool
	mandatory   bool
	persistent  bool
}

func newPublishCommand(root *rootOptions) *cobra.Command {
	var opts publishOptions

	cmd := &cobra.Command{
		Use:   "publish [OPTIONS]",
		Short: "Publish messages to an exchange",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd.Context(), root, cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.exchange, "exchange", "e", "", "Exchange to publish to, empty for the default exchange")
	flags.StringVarP(&opts.routingKey, "routing-key", "k", "", "Routing key")
	flags.StringVarP(&opts.body, "body", "b", "", "Message body")
	flags.StringVar(&opts.size, "size", "", "Publish a generated body of this size (e.g. 512, 4KiB, 1MiB)")
	flags.StringVar(&opts.contentType, "content-type", "", "Content type property")
	flags.IntVarP(&opts.count, "count", "n", 1, "Number of messages to publish")
	flags.Float64Var(&opts.rate, "rate", 0, "Maximum messages per second, 0 for unlimited")
	flags.BoolVar(&opts.confirm, "confirm", false, "Wait for a publisher confirm after each message")
	flags.BoolVar(&opts.mandatory, "mandatory", false, "Ask the broker to return unroutable messages")
	flags.BoolVar(&opts.persistent, "persistent", false, "Publish with persistent delivery mode")
	cmd.MarkFlagsMutuallyExclusive("body", "size")

	return cmd
}

// payload returns the literal body or one generated from --size.
func (o publishOptions) payload() ([]byte, error) {
	if o.size == "" {
		return []byte(o.body), nil
	}
	n, err := units.RAMInBytes(o.size)
	if err != nil {
		return nil, fmt.Errorf("invalid size %q: %w", o.size, err)
	}
	if n < 0 {
		return nil, fmt.Errorf("invalid size %q: must not be negative", o.size)
	}
	return bytes.Repeat([]byte{'x'}, int(n)), nil
}

// newLimiter returns a limiter allowing perSecond events, or an unlimited
// one for perSecond <= 0.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

func runPublish(ctx context.Context, root *rootOptions, out io.Writer, opts publishOptions) error {
	if opts.count < 1 {
		return errors.New("count must be at least 1")
	}
	body, err := opts.payload()
	if err != nil {
		return err
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

	if opts.confirm {
		if err := ch.ConfirmDeliveries(); err != nil {
			return err
		}
	}

	msg := rabbitmq.Publishing{
		Properties: rabbitmq.Properties{ContentType: opts.contentType},
		Body:       body,
	}
	if opts.persistent {
		msg.DeliveryMode = rabbitmq.Persistent
	}

	limiter := newLimiter(opts.rate)
	start := time.Now()
	var undelivered int
	for i := 0; i < opts.count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := ch.PublishWithContext(ctx, opts.exchange, opts.routingKey, opts.mandatory, false, msg)
		if rabbitmq.IsMessageError(err) {
			root.logger.Warn().Err(err).Int("seq", i+1).Msg("message not delivered")
			undelivered++
			continue
		}
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "published %d messages of %s in %s", opts.count, units.HumanSize(float64(len(body))), time.Since(start).Round(time.Millisecond))
	if undelivered > 0 {
		fmt.Fprintf(out, ", %d undelivered", undelivered)
	}
	fmt.Fprintln(out)
	return nil
}
