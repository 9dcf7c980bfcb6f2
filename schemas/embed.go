// Package schemas embeds the JSON Schema files shipped with memo-run.
package schemas

import "embed"

// Files holds every *.schema.json in this directory.
//
//go:embed *.schema.json
var Files embed.FS

// MonitoringData is the schema file name for the agent's terminal payload.
const MonitoringData = "monitoring_data.schema.json"
