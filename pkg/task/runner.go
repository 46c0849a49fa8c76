package task

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
)

// RunnerConfig locates the analysis binary.
type RunnerConfig struct {
	// Command is the analysis executable.
	Command string

	// Args are passed before the input path.
	Args []string
}

// Runner launches the analysis binary as a child process with stdout and
// stderr captured into the job's scratch directory.
type Runner struct {
	cfg    RunnerConfig
	logger *zap.Logger
}

var _ Launcher = (*Runner)(nil)

func NewRunner(cfg RunnerConfig, logger *zap.Logger) *Runner {
	return &Runner{cfg: cfg, logger: logger}
}

func (r *Runner) Launch(ctx context.Context, spec Spec) (Handle, error) {
	args := append(append([]string(nil), r.cfg.Args...), spec.InputPath)
	cmd := exec.CommandContext(ctx, r.cfg.Command, args...)
	cmd.Dir = spec.WorkDir

	stdout, err := os.Create(filepath.Join(spec.WorkDir, "run.out"))
	if err != nil {
		return nil, &TaskError{Op: "Launch", JobID: spec.JobID, Err: err}
	}
	stderr, err := os.Create(filepath.Join(spec.WorkDir, "run.err"))
	if err != nil {
		_ = stdout.Close()
		return nil, &TaskError{Op: "Launch", JobID: spec.JobID, Err: err}
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, &TaskError{Op: "Launch", JobID: spec.JobID, Err: err}
	}

	r.logger.Info("Launched analysis run",
		zap.String("job_id", spec.JobID),
		zap.Int("pid", cmd.Process.Pid),
	)

	return &processHandle{jobID: spec.JobID, cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type processHandle struct {
	jobID  string
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
}

func (h *processHandle) JobID() string { return h.jobID }

func (h *processHandle) Wait() error {
	err := h.cmd.Wait()
	_ = h.stdout.Close()
	_ = h.stderr.Close()
	if err != nil {
		return &TaskError{Op: "Wait", JobID: h.jobID, Err: err}
	}
	return nil
}
