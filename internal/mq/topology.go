package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeRuns Exchange = "bulksub.runs"
	ExchangeDLQ  Exchange = "bulksub.dlq"
)

// Queues — имена очередей.
const (
	QueueRunsEvents  Queue = "runs.events"
	QueueRunsControl Queue = "runs.control"
	QueueDLQControl  Queue = "dlq.control"
)

// Routing keys.
const (
	RoutingKeyEvents     RoutingKey = "events"
	RoutingKeyControl    RoutingKey = "control"
	RoutingKeyDLQControl RoutingKey = "control"
)

// SetupTopology объявляет exchanges и queues. Операции идемпотентны.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	for _, name := range []Exchange{ExchangeRuns, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(name), // name
			"direct",     // type
			true,         // durable
			false,        // auto-deleted
			false,        // internal
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQControl),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// runs.events — поток событий для внешних подписчиков
		{QueueRunsEvents, nil},

		// runs.control — команды; невалидные уходят в DLQ
		{QueueRunsControl, dlqArgs},

		{QueueDLQControl, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueRunsEvents, RoutingKeyEvents, ExchangeRuns},
		{QueueRunsControl, RoutingKeyControl, ExchangeRuns},
		{QueueDLQControl, RoutingKeyDLQControl, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Bulksub RabbitMQ Topology:

    bulksub.runs (direct)
    ├── runs.events [routing: events]
    │       Consumers: external
    └── runs.control [routing: control]
            Consumer: Supervisor
            DLQ: dlq.control

    bulksub.dlq (direct)
    └── dlq.control [routing: control]
            Manual processing
  `
}
