// Package mqttremote bridges external agents to remote checks: it
// subscribes to a per-check MQTT topic and feeds decoded payloads into
// the matching *check.RemoteCheck, grounded on the teacher's broker-client
// wiring in pkg/orchestrator (now removed; see DESIGN.md) adapted onto
// eclipse/paho.mqtt.golang directly.
package mqttremote

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// RemoteUpdater is satisfied by *site.Site: given a remote check name, an
// observed check type, and a decoded payload, it routes the update to the
// matching check's RemoteUpdate.
type RemoteUpdater interface {
	RemoteCheckUpdate(name, checkType string, data map[string]any) error
}

// Bridge owns a single MQTT client subscribed to one topic per remote
// check name.
type Bridge struct {
	client mqtt.Client
	site   RemoteUpdater
	prefix string
}

// Config describes how to reach the broker.
type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	// Prefix is prepended to every check name to form its topic, e.g.
	// "watchkeep/remote/" + name.
	Prefix string
}

// New connects to the broker and returns a Bridge ready to Subscribe.
func New(cfg Config, site RemoteUpdater) (*Bridge, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(10 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Printf("mqttremote: connected to %s", cfg.BrokerURL)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("⚠️  mqttremote: connection lost: %v", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("mqttremote: connect: %w", token.Error())
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "watchkeep/remote/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Bridge{client: client, site: site, prefix: prefix}, nil
}

// payload is the wire shape an external agent publishes.
type payload struct {
	CheckType string         `json:"checkType"`
	Data      map[string]any `json:"data"`
}

func decodePayload(raw []byte) (payload, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return payload{}, fmt.Errorf("mqttremote: decode payload: %w", err)
	}
	if p.CheckType == "" {
		return payload{}, fmt.Errorf("mqttremote: payload missing checkType")
	}
	return p, nil
}

// Subscribe listens for updates targeting the named remote check.
func (b *Bridge) Subscribe(checkName string) error {
	topic := b.prefix + checkName
	token := b.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		p, err := decodePayload(msg.Payload())
		if err != nil {
			log.Printf("⚠️  mqttremote: bad payload on %s: %v", topic, err)
			return
		}
		if err := b.site.RemoteCheckUpdate(checkName, p.CheckType, p.Data); err != nil {
			log.Printf("⚠️  mqttremote: update %s: %v", checkName, err)
		}
	})
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return fmt.Errorf("mqttremote: subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// Unsubscribe stops listening for updates to checkName.
func (b *Bridge) Unsubscribe(checkName string) error {
	token := b.client.Unsubscribe(b.prefix + checkName)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return fmt.Errorf("mqttremote: unsubscribe %s: %w", checkName, token.Error())
	}
	return nil
}

// Close disconnects from the broker, waiting up to 250ms for in-flight
// work to settle.
func (b *Bridge) Close() {
	b.client.Disconnect(250)
}
