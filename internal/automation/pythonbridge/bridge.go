// Package pythonbridge runs the browser-use agent script as a child process.
// Each objective gets a fresh interpreter, so the script's event loop and
// browser context live and die with the job.
package pythonbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"BrowserUse-Gateway/internal/automation"
)

// Engine invokes an external script with the objective on stdin and expects
// a JSON document on stdout.
type Engine struct {
	pythonExec string
	scriptPath string
	workingDir string
}

// NewEngine creates a bridge engine.
func NewEngine(pythonExec, scriptPath, workingDir string) (*Engine, error) {
	if strings.TrimSpace(scriptPath) == "" {
		return nil, fmt.Errorf("python bridge script path is empty")
	}
	if pythonExec == "" {
		pythonExec = "python3"
	}
	return &Engine{
		pythonExec: pythonExec,
		scriptPath: scriptPath,
		workingDir: workingDir,
	}, nil
}

type request struct {
	Objective string `json:"objective"`
	UseVision bool   `json:"use_vision"`
	Timestamp int64  `json:"timestamp"`
}

// ExecuteObjective runs the script once and returns its stdout as the result.
func (e *Engine) ExecuteObjective(ctx context.Context, objective string, cfg automation.Config) (automation.Result, error) {
	encoded, err := json.Marshal(request{
		Objective: objective,
		UseVision: cfg.UseVision,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode bridge request: %w", err)
	}

	command := exec.CommandContext(ctx, e.pythonExec, e.scriptPath)
	if e.workingDir != "" {
		command.Dir = e.workingDir
	}
	command.Env = buildEnv(cfg)
	command.Stdin = bytes.NewReader(encoded)

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("run bridge script: %w, stderr=%s", err, strings.TrimSpace(stderr.String()))
	}

	output := bytes.TrimSpace(stdout.Bytes())
	if len(output) == 0 {
		return nil, fmt.Errorf("bridge script produced no output")
	}
	if !json.Valid(output) {
		return nil, fmt.Errorf("bridge script output is not valid JSON: %.120s", output)
	}
	return automation.Result(output), nil
}

// buildEnv passes the model settings the way the agent script reads them.
func buildEnv(cfg automation.Config) []string {
	env := os.Environ()
	if cfg.ModelName != "" {
		env = append(env, "MODEL_NAME="+cfg.ModelName)
	}
	if cfg.APIKey != "" {
		env = append(env, "OPENAI_API_KEY="+cfg.APIKey)
	}
	env = append(env, "BROWSER_USE_VISION="+strconv.FormatBool(cfg.UseVision))
	for key, value := range cfg.Extra {
		env = append(env, key+"="+value)
	}
	return env
}

// ResolveScriptPath resolves script relative to baseDir.
func ResolveScriptPath(baseDir, script string) string {
	if script == "" {
		return ""
	}
	if filepath.IsAbs(script) {
		return script
	}
	if baseDir == "" {
		return script
	}
	return filepath.Join(baseDir, script)
}

var _ automation.Engine = (*Engine)(nil)
