package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/config"
)

const (
	connectTimeout  = 10 * time.Second
	ackTimeout      = 5 * time.Second
	disconnectQuiet = 1000 // milliseconds
	keepAlive       = 60 * time.Second

	maxQoS        = 2
	tlsMinVersion = tls.VersionTLS12
)

// Presence reasons.
const (
	ReasonShutdown   = "graceful_shutdown"
	ReasonConnection = "unexpected_disconnect"
)

// Presence is the retained message on Topics.Presence. The broker publishes
// the offline variant as the client's will if the connection drops.
type Presence struct {
	Status    string    `json:"status"` // online | offline
	ClientID  string    `json:"client_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func presencePayload(clientID, status, reason string) []byte {
	data, _ := json.Marshal(Presence{ //nolint:errcheck // plain struct always marshals
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	})
	return data
}

// buildClientOptions maps the mqtt config section onto paho options:
// broker URL, credentials, clean session, reconnect backoff and TLS.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		// Handlers block on the registry queue; run each on its own goroutine
		// so they cannot hold up paho's ack processing.
		SetOrderMatters(false)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	// Will: retained, so tools that subscribe later still see the node is gone.
	opts.SetBinaryWill(Topics{}.Presence(cfg.Broker.ClientID),
		presencePayload(cfg.Broker.ClientID, "offline", ReasonConnection), 1, true)

	return opts
}
