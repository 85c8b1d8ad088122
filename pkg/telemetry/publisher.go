// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Thermoquad/fuelboost/pkg/faults"
	"github.com/Thermoquad/fuelboost/pkg/hostlink"
)

// Message is one outgoing MQTT message.
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Client is the part of mqtt.Client the publisher uses.
type Client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Default publisher settings
const (
	DefaultInterval   = time.Second
	DefaultQueueDepth = 64
	maxQueued         = 256
)

// Publisher turns comm core events into MQTT messages. Telemetry and Fault
// are called on the comm goroutine and never block; Run publishes from its
// own goroutine and queues messages while no broker connection is up.
type Publisher struct {
	device   string
	interval uint32

	out       chan Message
	lastState uint32
	sentState bool

	dropped   atomic.Uint64
	published atomic.Uint64
}

// NewPublisher creates a publisher that sends at most one state message per
// interval.
func NewPublisher(device string, interval time.Duration, depth int) *Publisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if depth < 1 {
		depth = DefaultQueueDepth
	}
	return &Publisher{
		device:   device,
		interval: uint32(interval.Milliseconds()),
		out:      make(chan Message, depth),
	}
}

// Telemetry queues a state message when the interval has passed.
func (p *Publisher) Telemetry(t hostlink.Telemetry) {
	if p.sentState && t.Uptime-p.lastState < p.interval {
		return
	}
	p.sentState = true
	p.lastState = t.Uptime
	p.enqueue(Message{
		Topic:   StateTopic(p.device),
		Payload: marshal(NewState(p.device, t)),
		Retain:  true,
	})
}

// Fault queues a fault message.
func (p *Publisher) Fault(m faults.Message) {
	p.enqueue(Message{
		Topic:   FaultTopic(p.device),
		Payload: marshal(NewFault(p.device, m)),
		QoS:     1,
	})
}

func (p *Publisher) enqueue(m Message) {
	select {
	case p.out <- m:
	default:
		if p.dropped.Add(1) == 1 {
			log.Printf("mqtt: outgoing queue full, dropping messages")
		}
	}
}

// Dropped returns how many messages were lost on a full outgoing queue.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Published returns how many messages the broker accepted.
func (p *Publisher) Published() uint64 {
	return p.published.Load()
}

// Run publishes queued messages until ctx is done. A new client arrives on
// clients each time the broker connection comes up; messages wait in a
// backlog while there is none. The oldest backlog entries are dropped past
// a fixed limit.
func (p *Publisher) Run(ctx context.Context, clients <-chan Client) {
	var (
		client  Client
		backlog []Message
	)

	for {
		select {
		case c := <-clients:
			client = c
			if client == nil || !client.IsConnected() {
				continue
			}
			queued := len(backlog)
			for _, m := range backlog {
				p.publish(client, m)
			}
			backlog = nil
			if queued > 0 {
				log.Printf("mqtt: published %d queued messages", queued)
			}

		case m := <-p.out:
			if client != nil && client.IsConnected() {
				p.publish(client, m)
				continue
			}
			if len(backlog) == maxQueued {
				backlog = backlog[1:]
				p.dropped.Add(1)
			}
			backlog = append(backlog, m)

		case <-ctx.Done():
			return
		}
	}
}

func (p *Publisher) publish(c Client, m Message) {
	token := c.Publish(m.Topic, m.QoS, m.Retain, m.Payload)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Printf("mqtt: publish to %s: %v", m.Topic, err)
		return
	}
	p.published.Add(1)
}
