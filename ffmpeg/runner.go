package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"mediaforge/config"
	"mediaforge/task"

	"github.com/google/uuid"
)

// Runner is the process supervisor: it spawns one ffmpeg process per
// admitted task, streams its progress channel into the task store and
// records exactly one terminal outcome. While a task runs, its runner
// goroutine is the sole writer of that task's mutable state.
type Runner struct {
	cfg       *config.Config
	store     *task.Store
	outputDir string
}

func NewRunner(cfg *config.Config, store *task.Store) (*Runner, error) {
	if _, err := exec.LookPath(cfg.FFBin); err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found or not in PATH: %s", cfg.FFBin)
	}

	outputDir := cfg.OutputDir
	if outputDir == "" {
		dir, err := os.MkdirTemp("", "mediaforge_")
		if err != nil {
			return nil, fmt.Errorf("could not create output directory: %w", err)
		}
		outputDir = dir
	} else if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create output directory: %w", err)
	}
	log.Printf("Using output directory: %s", outputDir)

	return &Runner{
		cfg:       cfg,
		store:     store,
		outputDir: outputDir,
	}, nil
}

func (r *Runner) OutputDir() string { return r.outputDir }

// Run executes the task's command and blocks until the task is
// terminal. The encoder writes to a temporary path which is renamed
// into place only on success, so no partial file ever lands at the
// final location.
func (r *Runner) Run(ctx context.Context, t task.Task) error {
	container := string(t.Spec.Container)
	tempPath := filepath.Join(r.outputDir, fmt.Sprintf("tmp_%s.%s", uuid.New(), container))
	finalPath := filepath.Join(r.outputDir, fmt.Sprintf("%s.%s", uuid.New(), container))

	args := make([]string, 0, len(t.Args)+1)
	args = append(args, t.Args...)
	args = append(args, tempPath)

	cmd := exec.Command(r.cfg.FFBin, args...)
	// Own process group, so cancellation kills ffmpeg and anything it
	// forked in one signal.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.store.Fail(t.ID, "spawn failed: "+err.Error())
		return fmt.Errorf("spawn ffmpeg: %w", err)
	}

	log.Printf("Executing for task %s: %s", t.ID, t.CommandPreview)
	if err := cmd.Start(); err != nil {
		r.store.Fail(t.ID, "spawn failed: "+err.Error())
		return fmt.Errorf("spawn ffmpeg: %w", err)
	}

	waitDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		case <-waitDone:
		}
	}()

	mon := newProgressMonitor(t.Spec.TotalDuration, r.cfg.ProgressInterval, r.cfg.ErrorTailLines)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 512*1024)
	for scanner.Scan() {
		if p, write := mon.observe(scanner.Text(), time.Now()); write {
			// Failure here only means the task went terminal already.
			_ = r.store.SetProgress(t.ID, p)
		}
	}
	if p, write := mon.flush(); write {
		_ = r.store.SetProgress(t.ID, p)
	}
	if scanner.Err() != nil && ctx.Err() == nil {
		// The progress stream died before the exit code is known; let
		// subscribers fast-path to failure UI.
		r.store.SignalStreamLoss(t.ID)
	}

	err = cmd.Wait()
	close(waitDone)

	if ctx.Err() != nil {
		os.Remove(tempPath)
		detail := task.CancelledDetail
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			detail += ": task timeout exceeded"
		}
		r.store.Fail(t.ID, detail)
		log.Printf("Task %s cancelled", t.ID)
		return nil
	}

	if err != nil {
		os.Remove(tempPath)
		detail := mon.tailText()
		if detail == "" {
			detail = err.Error()
		}
		r.store.Fail(t.ID, detail)
		return fmt.Errorf("ffmpeg execution failed: %w", err)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		r.store.Fail(t.ID, "finalize output: "+err.Error())
		return fmt.Errorf("finalize output: %w", err)
	}

	if err := r.store.Complete(t.ID, finalPath); err != nil {
		return err
	}
	log.Printf("Task %s completed: %s", t.ID, finalPath)
	return nil
}
