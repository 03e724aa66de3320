// Package mqttpub forwards measurement and error events to an MQTT
// broker for external dashboards.
package mqttpub

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"codeberg.org/benchkit/dmmlogd/internal/errors"
	"codeberg.org/benchkit/dmmlogd/internal/event"
	"codeberg.org/benchkit/dmmlogd/internal/logger"
)

const (
	disconnectQuiesceMS = 250
	connectTimeout      = 10 * time.Second
)

type Publisher struct {
	client mqtt.Client
	topic  string
	log    logger.Logger
}

// New connects to the broker. The topic is the prefix under which
// measurements (<topic>/<device>) and errors (<topic>/errors/<device>)
// are published.
func New(broker, clientID, topic string, log logger.Logger) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.New().Wrap(errors.ErrConnectionFailed, token.Error())
	}

	log.Info().Str("broker", broker).Str("topic", topic).Msg("MQTT publisher connected")

	return &Publisher{client: client, topic: topic, log: log}, nil
}

type errorPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device_name"`
	Detail    string    `json:"detail"`
}

// Run consumes events until the channel closes. Publish failures are
// logged, never propagated; a broker outage must not affect
// acquisition.
func (p *Publisher) Run(events <-chan event.Event) {
	for ev := range events {
		switch ev.Type {
		case event.TypeMeasurementRecorded:
			p.publish(p.topic+"/"+ev.DeviceName, ev.Measurement)
		case event.TypeDeviceError:
			p.publish(p.topic+"/errors/"+ev.DeviceName, errorPayload{
				Timestamp: ev.Timestamp,
				Device:    ev.DeviceName,
				Detail:    ev.Detail,
			})
		}
	}
}

func (p *Publisher) publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error().Err(err).Str("topic", topic).Msg("Failed to encode MQTT payload")
		return
	}

	token := p.client.Publish(topic, 0, false, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			p.log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

func (p *Publisher) Close() {
	p.client.Disconnect(disconnectQuiesceMS)
	p.log.Info().Msg("MQTT publisher disconnected")
}
