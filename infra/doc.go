// Package infra contains technical adapters such as the MQTT bridge, the
// telemetry exporters, history loaders and run stores. These packages
// depend only on the interfaces defined in the core packages.
package infra
