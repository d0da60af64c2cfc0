// glsettings - operator CLI for Gray Logic settings nodes
//
// Local commands work directly on a node's database; remote commands talk
// to a running glsettingsd over MQTT.
package main

import (
	"os"

	"github.com/nerrad567/gray-logic-settings/cmd/glsettings/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
