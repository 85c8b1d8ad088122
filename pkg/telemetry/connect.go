// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Options configure the broker connection.
type Options struct {
	Broker   string // host name or full URL
	Username string
	Password string
	ClientID string
}

// BrokerURL returns the broker address, defaulting to plain TCP on port 1883
// when only a host name is given.
func (o Options) BrokerURL() string {
	if strings.Contains(o.Broker, "://") {
		return o.Broker
	}
	return fmt.Sprintf("tcp://%s:1883", o.Broker)
}

// Connect connects to the broker and hands each new connection to clients.
// It reconnects automatically and returns when ctx is done, or with an
// error if the first connection attempt fails.
func Connect(ctx context.Context, o Options, clients chan<- Client) error {
	url := o.BrokerURL()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(url)
	opts.SetClientID(o.ClientID)
	opts.SetUsername(o.Username)
	opts.SetPassword(o.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("mqtt: connection lost: %v", err)
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Printf("mqtt: connected to %s", url)
		select {
		case clients <- c:
		case <-ctx.Done():
		}
	})

	client := mqtt.NewClient(opts)

	log.Printf("mqtt: connecting to %s", url)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt: connect to %s: %w", url, token.Error())
	}

	<-ctx.Done()

	if client.IsConnected() {
		client.Disconnect(250)
		log.Printf("mqtt: disconnected")
	}
	return nil
}
