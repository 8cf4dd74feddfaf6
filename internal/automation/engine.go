// Package automation defines the contract between the job pool and the
// engine that actually drives a browser. From the pool's point of view an
// execution is a single blocking call; whatever concurrency the engine uses
// internally stays inside the engine.
package automation

import (
	"context"
	"encoding/json"
)

// Result is the raw JSON document produced by the engine for one objective.
type Result = json.RawMessage

// Config is forwarded opaquely to the engine on every call.
type Config struct {
	ModelName string
	APIKey    string
	UseVision bool
	Extra     map[string]string
}

// Engine executes one objective to completion.
//
// Implementations hold exclusive resources (one browser, one session) unless
// they document otherwise; running more than one worker requires an engine
// that supports concurrent independent sessions.
type Engine interface {
	ExecuteObjective(ctx context.Context, objective string, cfg Config) (Result, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, objective string, cfg Config) (Result, error)

// ExecuteObjective calls f.
func (f EngineFunc) ExecuteObjective(ctx context.Context, objective string, cfg Config) (Result, error) {
	return f(ctx, objective, cfg)
}
