// Package events defines the control loop events published on the event bus.
//
// Available event types:
//   - RunEvent: a run started or finished
//   - StepEvent: one step of a run was executed
//   - DecisionEvent: a pipeline stage logged a decision
package events
