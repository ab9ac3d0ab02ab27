package rabbitmq

import (
	"context"

	"github.com/israelio/rabbit-blocking-client/internal/frame"
)

// ExchangeOptions configures exchange declaration
type ExchangeOptions struct {
	Passive    bool
	Durable    bool
	AutoDelete bool
	Internal   bool
	Args       Table
}

// QueueOptions configures queue declaration
type QueueOptions struct {
	Passive    bool
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	Args       Table
}

// Queue represents queue information returned from QueueDeclare
type Queue struct {
	Name      string
	Messages  int
	Consumers int
}

// ExchangeDeclare declares an exchange. An empty kind declares a direct
// exchange.
func (ch *Channel) ExchangeDeclare(name, kind string, opts ExchangeOptions) error {
	if kind == "" {
		kind = ExchangeDirect
	}
	if err := validateShortStrings("exchange", name, "exchange_type", kind); err != nil {
		return err
	}

	req := &frame.ExchangeDeclare{
		Exchange:   name,
		Type:       kind,
		Passive:    opts.Passive,
		Durable:    opts.Durable,
		AutoDelete: opts.AutoDelete,
		Internal:   opts.Internal,
		Arguments:  opts.Args,
	}
	resp, err := ch.rpcRequest(context.Background(), req)
	_, err = expect[*frame.ExchangeDeclareOk](req, resp, err)
	return err
}

// ExchangeDelete deletes an exchange. With ifUnused the broker refuses to
// delete an exchange that still has bindings.
func (ch *Channel) ExchangeDelete(name string, ifUnused bool) error {
	if err := validateShortString("exchange", name); err != nil {
		return err
	}
	req := &frame.ExchangeDelete{Exchange: name, IfUnused: ifUnused}
	resp, err := ch.rpcRequest(context.Background(), req)
	_, err = expect[*frame.ExchangeDeleteOk](req, resp, err)
	return err
}

// ExchangeBind binds destination to source.
func (ch *Channel) ExchangeBind(destination, source, routingKey string, args Table) error {
	if err := validateShortStrings("destination", destination, "source", source, "routing_key", routingKey); err != nil {
		return err
	}
	req := &frame.ExchangeBind{
		Destination: destination,
		Source:      source,
		RoutingKey:  routingKey,
		Arguments:   args,
	}
	resp, err := ch.rpcRequest(context.Background(), req)
	_, err = expect[*frame.ExchangeBindOk](req, resp, err)
	return err
}

// ExchangeUnbind removes a binding created by ExchangeBind.
func (ch *Channel) ExchangeUnbind(destination, source, routingKey string, args Table) error {
	if err := validateShortStrings("destination", destination, "source", source, "routing_key", routingKey); err != nil {
		return err
	}
	req := &frame.ExchangeUnbind{
		Destination: destination,
		Source:      source,
		RoutingKey:  routingKey,
		Arguments:   args,
	}
	resp, err := ch.rpcRequest(context.Background(), req)
	_, err = expect[*frame.ExchangeUnbindOk](req, resp, err)
	return err
}

// QueueDeclare declares a queue. An empty name asks the broker to generate
// one, returned in Queue.Name.
func (ch *Channel) QueueDeclare(name string, opts QueueOptions) (Queue, error) {
	if err := validateShortString("queue", name); err != nil {
		return Queue{}, err
	}

	req := &frame.QueueDeclare{
		Queue:      name,
		Passive:    opts.Passive,
		Durable:    opts.Durable,
		Exclusive:  opts.Exclusive,
		AutoDelete: opts.AutoDelete,
		Arguments:  opts.Args,
	}
	resp, err := ch.rpcRequest(context.Background(), req)
	ok, err := expect[*frame.QueueDeclareOk](req, resp, err)
	if err != nil {
		return Queue{}, err
	}
	return Queue{
		Name:      ok.Queue,
		Messages:  int(ok.MessageCount),
		Consumers: int(ok.ConsumerCount),
	}, nil
}

// QueueBind binds queue to exchange.
func (ch *Channel) QueueBind(queue, exchange, routingKey string, args Table) error {
	if err := validateShortStrings("queue", queue, "exchange", exchange, "routing_key", routingKey); err != nil {
		return err
	}
	req := &frame.QueueBind{
		Queue:      queue,
		Exchange:   exchange,
		RoutingKey: routingKey,
		Arguments:  args,
	}
	resp, err := ch.rpcRequest(context.Background(), req)
	_, err = expect[*frame.QueueBindOk](req, resp, err)
	return err
}

// QueueUnbind removes a binding created by QueueBind.
func (ch *Channel) QueueUnbind(queue, exchange, routingKey string, args Table) error {
	if err := validateShortStrings("queue", queue, "exchange", exchange, "routing_key", routingKey); err != nil {
		return err
	}
	req := &frame.QueueUnbind{
		Queue:      queue,
		Exchange:   exchange,
		RoutingKey: routingKey,
		Arguments:  args,
	}
	resp, err := ch.rpcRequest(context.Background(), req)
	_, err = expect[*frame.QueueUnbindOk](req, resp, err)
	return err
}

// QueuePurge removes every ready message from queue and returns how many
// were purged.
func (ch *Channel) QueuePurge(queue string) (int, error) {
	if err := validateShortString("queue", queue); err != nil {
		return 0, err
	}
	req := &frame.QueuePurge{Queue: queue}
	resp, err := ch.rpcRequest(context.Background(), req)
	ok, err := expect[*frame.QueuePurgeOk](req, resp, err)
	if err != nil {
		return 0, err
	}
	return int(ok.MessageCount), nil
}

// QueueDelete deletes queue and returns the number of messages it held.
func (ch *Channel) QueueDelete(queue string, ifUnused, ifEmpty bool) (int, error) {
	if err := validateShortString("queue", queue); err != nil {
		return 0, err
	}
	req := &frame.QueueDelete{Queue: queue, IfUnused: ifUnused, IfEmpty: ifEmpty}
	resp, err := ch.rpcRequest(context.Background(), req)
	ok, err := expect[*frame.QueueDeleteOk](req, resp, err)
	if err != nil {
		return 0, err
	}
	return int(ok.MessageCount), nil
}
