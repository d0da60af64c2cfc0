package mqtt

import "fmt"

// TopicPrefix is the root of every settings topic.
const TopicPrefix = "glsettings"

// Topics builds settings topic names. Per-node topics follow
// glsettings/{node}/{kind}; presence topics are keyed by MQTT client id so
// CLI clients and daemons can be told apart.
//
//	mqtt.Topics{}.Command("bench-7") // "glsettings/bench-7/command"
type Topics struct{}

// Command is where a node receives command frames.
func (Topics) Command(node string) string { return nodeTopic(node, "command") }

// Response is where a node publishes the records answering a command.
func (Topics) Response(node string) string { return nodeTopic(node, "response") }

// Status is where a node publishes the JSON status closing each command.
func (Topics) Status(node string) string { return nodeTopic(node, "status") }

// Changed is where a node publishes the record of every changed setting.
func (Topics) Changed(node string) string { return nodeTopic(node, "changed") }

// Presence is the retained online/offline topic of an MQTT client.
func (Topics) Presence(clientID string) string {
	return fmt.Sprintf("%s/presence/%s", TopicPrefix, clientID)
}

// AllChanged matches the changed topic of every node.
func (Topics) AllChanged() string { return nodeTopic("+", "changed") }

func nodeTopic(node, kind string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefix, node, kind)
}
