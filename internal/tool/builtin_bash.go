package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/opencode-ai/agentcore/internal/permission"
)

// sigkillGrace bounds how long a process is given to exit after SIGTERM
// before SIGKILL is sent.
const sigkillGrace = 200 * time.Millisecond

// NewBashDescriptor runs a shell command in its own process group so it can
// be killed as a unit; it declares the "shell" mutual-exclusion key so the
// executor never runs two shell calls from the same batch concurrently
//.
func NewBashDescriptor(workDir string) *Descriptor {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"command": {"type": "string"}},
		"required": ["command"]
	}`)

	return &Descriptor{
		Name:            "bash",
		Description:     "Run a shell command in the working directory.",
		ParameterSchema: schema,
		Permission:      permission.ActionAsk,
		Capability:      permission.CapShell,
		AllowedModes:    []Mode{ModeParent, ModeChild},
		MutualExclusion: "shell",
		Handler: func(ctx context.Context, toolCtx *Context, args json.RawMessage) (string, error) {
			var in struct {
				Command string `json:"command"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			return runShell(ctx, workDir, in.Command)
		},
	}
}

func runShell(ctx context.Context, workDir, command string) (string, error) {
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = workDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return "", err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return out.String(), fmt.Errorf("exit: %w", err)
		}
		return out.String(), nil
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done
		return out.String(), ctx.Err()
	}
}

// killProcessGroup sends SIGTERM to the command's process group and
// escalates to SIGKILL after sigkillGrace if it hasn't exited.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid := cmd.Process.Pid
	_ = syscall.Kill(-pgid, syscall.SIGTERM)
	time.Sleep(sigkillGrace)
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}
