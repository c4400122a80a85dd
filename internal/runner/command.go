// Package runner executes command tasks through the system shell.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"time"

	"chronosync/internal/logger"
	"chronosync/internal/model"
	"chronosync/internal/parser"

	"go.uber.org/zap"
)

type CommandRunner struct{}

func NewCommandRunner() *CommandRunner {
	return &CommandRunner{}
}

// Run executes the task's command line, capturing output and exit code.
// A timeout kills the process and reports exit code -1.
func (r *CommandRunner) Run(ctx context.Context, job model.Job) model.ExecutionResult {
	result := model.ExecutionResult{
		JobID:     job.ID,
		JobName:   job.Name,
		StartedAt: time.Now(),
	}

	task := job.Command
	if task == nil || task.Command == "" {
		result.FinishedAt = time.Now()
		result.Status = model.StatusFailed
		result.ExitCode = -1
		result.Stderr = "no command configured"
		return result
	}

	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", task.Command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", task.Command)
	}
	cmd.Dir = task.WorkingDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result.FinishedAt = time.Now()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.CustomVars = parser.ParseVars(result.Stdout)

	switch {
	case err == nil:
		result.Status = model.StatusSuccess
		result.ExitCode = 0
	default:
		result.Status = model.StatusFailed
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			if result.Stderr == "" {
				result.Stderr = err.Error()
			}
		}
		if ctx.Err() != nil {
			result.Stderr = "execution timeout: " + result.Stderr
		}
	}

	logger.Log.Info("command finished",
		zap.String("job", job.Name),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration()))

	return result
}
