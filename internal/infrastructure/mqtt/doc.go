// Package mqtt is the broker connection shared by glsettingsd and the
// glsettings CLI.
//
// A node listens on glsettings/<node>/command and answers on its response
// and status topics; its retained presence message on
// glsettings/<node>/presence reads "online" while connected, "offline" with
// reason "shutdown" after Close, and "offline" with reason
// "unexpected_disconnect" when the broker fires the will.
//
//	glsettings CLI <-> broker <-> glsettingsd (remote bridge, executor)
//
// Subscriptions are tracked by the Client and replayed on every reconnect,
// so callers subscribe once:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.Response(node), 1, onRecord)
//	err = client.Publish(mqtt.Topics{}.Command(node), []byte{0x03}, 1, false)
//
// Anyone who can publish to a command topic can rewrite every setting of
// that node; restrict glsettings/+/command with broker ACLs and enable
// TLS (mqtt.broker.tls) outside the lab.
package mqtt
