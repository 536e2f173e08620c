package document

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Runner executes external commands. Tests substitute fake binaries or
// stub implementations.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args and captures both output streams.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	elapsed := time.Since(start)

	log := zap.L().With(
		zap.String("cmd", name),
		zap.String("args", strings.Join(args, " ")),
		zap.Duration("elapsed", elapsed),
	)
	if err != nil {
		log.Debug("document: command failed", zap.Error(err), zap.String("stderr", truncate(stderr.String(), 4<<10)))
	} else {
		log.Debug("document: command ok", zap.Int("stdout_bytes", stdout.Len()))
	}

	return stdout.Bytes(), stderr.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
