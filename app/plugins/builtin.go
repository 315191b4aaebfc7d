// Package plugins links the built-in telemetry sinks into the binary. Each
// imported package registers its sink types from init.
package plugins

import (
	coretelemetry "github.com/kilianp07/tunnelctl/core/telemetry"
	_ "github.com/kilianp07/tunnelctl/infra/mqtt"
	_ "github.com/kilianp07/tunnelctl/infra/runlog"
	_ "github.com/kilianp07/tunnelctl/infra/telemetry"
)

// Sinks lists the telemetry sink types available to the configuration.
func Sinks() []string { return coretelemetry.RegisteredPublishers() }
