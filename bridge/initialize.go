package bridge

import (
	"github.com/invopop/jsonschema"
)

const (
	serverName    = "ASR-GoT"
	serverVersion = "0.1.0"
	serverVendor  = "ASR-GoT Project"
)

// InitializeResult is the fixed capability/schema descriptor returned by the
// initialize handshake. It never waits on backend readiness; status is
// always "ready" so the client does not stall on container startup.
type InitializeResult struct {
	Name         string                `json:"name"`
	Version      string                `json:"version"`
	Vendor       string                `json:"vendor"`
	Capabilities map[string]Capability `json:"capabilities"`
	Status       string                `json:"status"`
	Display      Display               `json:"display"`
}

type Capability struct {
	Description string             `json:"description"`
	Params      *jsonschema.Schema `json:"params,omitempty"`
}

type Display struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var queryContextSchema = func() *jsonschema.Schema {
	r := jsonschema.Reflector{DoNotReference: true}
	return r.Reflect(&QueryContext{})
}()

func newInitializeResult() *InitializeResult {
	return &InitializeResult{
		Name:    serverName,
		Version: serverVersion,
		Vendor:  serverVendor,
		Capabilities: map[string]Capability{
			string(QueryMethod): {
				Description: "Use ASR-GoT to solve complex reasoning problems",
				Params:      queryContextSchema,
			},
		},
		Status: "ready",
		Display: Display{
			Name:        serverName,
			Description: "ASR-GoT is a graph-of-thought reasoner for complex research questions.",
		},
	}
}

// initializeParams is what we accept from the client handshake. The fields
// are recorded for diagnostics only.
type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ClientInfo      map[string]any `json:"clientInfo"`
}
