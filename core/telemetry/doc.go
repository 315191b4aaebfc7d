// Package telemetry defines the live-state push surface of the controller.
//
// Each executed step becomes a Snapshot whose Points are individually
// addressable (level, volume, inflow, outflow, price, energy and
// pump/<id>/flow). Publishers are instantiated from configuration through a
// factory registry; several configured sinks are combined in a
// MultiPublisher. Sinks may additionally implement DecisionRecorder or
// RunRecorder to receive the event log and run summaries.
package telemetry
