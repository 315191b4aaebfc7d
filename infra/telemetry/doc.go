// Package telemetry provides the Prometheus and InfluxDB publishers, the
// event bus collector and the /metrics server. The publishers register
// themselves in the core telemetry registry under the names "nop",
// "prometheus" and "influx".
package telemetry
