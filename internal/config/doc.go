// Package config loads the machinewatch configuration.
//
// Configuration is a YAML file with one section per concern (http,
// discovery, database, cache, events, advertise). Every field has a
// default, so a missing file is not an error.
//
// # Configuration File Location
//
// Unless --config names a file, it is read from:
//   - Linux: $XDG_CONFIG_HOME/machinewatch/config.yaml or $HOME/.config/machinewatch/config.yaml
//   - macOS: $HOME/.config/machinewatch/config.yaml
//   - Windows: %LOCALAPPDATA%\machinewatch\config.yaml
//
// # Environment
//
// MACHINEWATCH_* variables override the file:
//
//	MACHINEWATCH_LOG_LEVEL          log_level
//	MACHINEWATCH_HTTP_HOST          http.host
//	MACHINEWATCH_HTTP_PORT          http.port
//	MACHINEWATCH_DISCOVERY_PORT     discovery.port
//	MACHINEWATCH_BEACON             discovery.beacon
//	MACHINEWATCH_BROADCAST_IP       discovery.broadcast_ip
//	MACHINEWATCH_DISCOVERY_TIMEOUT  discovery.timeout
//	MACHINEWATCH_POLL_INTERVAL      discovery.poll_interval
//	MACHINEWATCH_DATABASE_DRIVER    database.driver
//	MACHINEWATCH_DATABASE_URL       database.url (selects postgres unless a driver is set)
//	MACHINEWATCH_REDIS_URL          cache.url (enables the cache)
//	MACHINEWATCH_EVENTS_DRIVER      events.driver
//	MACHINEWATCH_NATS_URL           events.nats_url
//	MACHINEWATCH_KAFKA_BROKERS      events.kafka_brokers (comma separated)
//	MACHINEWATCH_KAFKA_TOPIC        events.kafka_topic
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Discovery.Port)
//
// Save writes atomically through a temporary file and rename.
package config
