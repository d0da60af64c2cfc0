package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize bounds outgoing messages. Settings frames are at most a
// few hundred bytes.
const maxPayloadSize = 64 << 10

// Publish sends payload to topic and waits for the broker to acknowledge it
// (QoS 1 and 2). Command, response and status frames must not be retained;
// only presence is.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

func validate(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// await waits for token, wrapping a failure or timeout in kind.
func await(token pahomqtt.Token, kind error) error {
	if !token.WaitTimeout(ackTimeout) {
		return fmt.Errorf("%w: %w after %v", kind, ErrTimeout, ackTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}
