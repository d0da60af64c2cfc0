//go:build integration

package mqtt

import (
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/config"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestIntegration_Connect(t *testing.T) {
	client, err := Connect(integrationConfig("glsettings-int-connect"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client, err := Connect(integrationConfig("glsettings-int-sub-track"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := []string{
		Topics{}.Command("int-a"),
		Topics{}.Command("int-b"),
		Topics{}.AllChanged(),
	}
	handler := func(string, []byte) error { return nil }

	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if got := client.Subscriptions(); len(got) != len(topics) {
		t.Errorf("Subscriptions() = %v, want %d topics", got, len(topics))
	}

	if err := client.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if slices.Contains(client.Subscriptions(), topics[0]) {
		t.Errorf("%s still tracked after unsubscribe", topics[0])
	}
}

func TestIntegration_FrameRoundtrip(t *testing.T) {
	pubClient, err := Connect(integrationConfig("glsettings-int-pub"))
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pubClient.Close()

	subClient, err := Connect(integrationConfig("glsettings-int-sub"))
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer subClient.Close()

	topic := Topics{}.Command("int-roundtrip")
	frame := []byte{0x05, 0x02, 0x00, 0x02, 0xAA, 0xBB}

	received := make(chan []byte, 1)
	var once sync.Once
	err = subClient.Subscribe(topic, 1, func(_ string, p []byte) error {
		once.Do(func() { received <- append([]byte(nil), p...) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pubClient.Publish(topic, frame, 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if string(got) != string(frame) {
			t.Errorf("received % x, want % x", got, frame)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for frame")
	}
}

func TestIntegration_PresenceRetained(t *testing.T) {
	node, err := Connect(integrationConfig("glsettings-int-presence"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer node.Close()

	watcher, err := Connect(integrationConfig("glsettings-int-watcher"))
	if err != nil {
		t.Fatalf("Connect() watcher error = %v", err)
	}
	defer watcher.Close()

	got := make(chan string, 4)
	err = watcher.Subscribe(Topics{}.Presence("glsettings-int-presence"), 1, func(_ string, p []byte) error {
		got <- string(p)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case msg := <-got:
		if !strings.Contains(msg, `"status":"online"`) {
			t.Errorf("retained presence = %s, want online", msg)
		}
	case <-time.After(5 * time.Second):
		t.Error("no retained presence message")
	}
}
