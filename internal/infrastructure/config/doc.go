// Package config loads the YAML configuration of glsettingsd and the
// glsettings CLI.
//
// Load starts from built-in defaults, overlays the file, then applies
// GLSETTINGS_* environment variables and validates the result:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//
// Keep broker passwords, the InfluxDB token and the JWT secret in the
// environment (GLSETTINGS_MQTT_PASSWORD, GLSETTINGS_INFLUXDB_TOKEN,
// GLSETTINGS_JWT_SECRET) and the file itself at mode 0600.
package config
