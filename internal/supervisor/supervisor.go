// Package supervisor owns the answering service process and the
// resynchronization cycle that restarts it when the corpus changes.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/corpusd/corpusd/internal/syncer"
)

// State is the supervisor's lifecycle phase.
type State int

const (
	// StateStopped means no service process is live.
	StateStopped State = iota
	// StateRunning means exactly one service process is live.
	StateRunning
	// StateRestarting means the old process is being torn down or a resync
	// pass is in flight.
	StateRestarting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateRunning:
		return "RUNNING"
	case StateRestarting:
		return "RESTARTING"
	default:
		return "UNKNOWN"
	}
}

// TerminateTimeout is how long a service process gets to exit after SIGTERM
// before it is killed.
const TerminateTimeout = 10 * time.Second

// Resyncer runs one corpus reconciliation pass. *syncer.Syncer satisfies it.
type Resyncer interface {
	Sync(ctx context.Context) (syncer.Report, error)
}

// Supervisor holds at most one live service process and serializes
// stop/resync/restart cycles. All mutation of the process handle happens on
// the Run goroutine; State is the only concurrently readable field.
type Supervisor struct {
	command  []string
	resyncer Resyncer
	log      *slog.Logger

	mu    sync.Mutex
	state State
	cmd   *exec.Cmd

	// For testing: override process construction.
	startCommand func(name string, args ...string) *exec.Cmd
}

// Options configures New.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// New creates a supervisor that spawns command after each successful resync.
func New(command []string, resyncer Resyncer, opts Options) (*Supervisor, error) {
	if len(command) == 0 {
		return nil, errors.New("service command must not be empty")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Supervisor{
		command:      command,
		resyncer:     resyncer,
		log:          opts.Logger,
		state:        StateStopped,
		startCommand: exec.Command,
	}, nil
}

// State returns the current lifecycle phase.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run performs the initial resync-and-start, then serves resync requests
// until ctx is cancelled. Each request runs one full stop/resync/restart
// cycle; requests arriving mid-cycle stay queued in the channel. On return
// any live process has been terminated.
func (s *Supervisor) Run(ctx context.Context, requests <-chan struct{}) error {
	if err := s.cycle(ctx); err != nil {
		s.log.Error("initial start failed, waiting for next corpus change", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case _, ok := <-requests:
			if !ok {
				s.shutdown()
				return nil
			}
			if err := s.cycle(ctx); err != nil {
				s.log.Error("restart cycle failed, service left stopped", "error", err)
			}
		}
	}
}

// cycle is one stop → resync → start sequence. A resync failure leaves the
// supervisor STOPPED with no process spawned; the next request retries.
func (s *Supervisor) cycle(ctx context.Context) error {
	s.setState(StateRestarting)
	s.stopProcess()

	report, err := s.resyncer.Sync(ctx)
	if err != nil {
		s.setState(StateStopped)
		return fmt.Errorf("resync: %w", err)
	}
	s.log.Info("resync pass finished",
		"changed", report.Changed(),
		"added", len(report.Added),
		"removed", len(report.Removed),
		"renamed", len(report.Renamed))

	if err := s.startProcess(); err != nil {
		s.setState(StateStopped)
		return fmt.Errorf("start service: %w", err)
	}
	s.setState(StateRunning)
	return nil
}

// startProcess spawns the service. The caller must have confirmed no process
// is live.
func (s *Supervisor) startProcess() error {
	cmd := s.startCommand(s.command[0], s.command[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	s.log.Info("service started", "pid", cmd.Process.Pid, "command", s.command)
	return nil
}

// stopProcess terminates the live process, if any, and blocks until its exit
// is confirmed. Holding exactly one handle and always waiting here is what
// keeps two service processes from ever being live at once.
func (s *Supervisor) stopProcess() {
	s.mu.Lock()
	cmd := s.cmd
	s.cmd = nil
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	pid := cmd.Process.Pid
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		// Already exited, or signalling is unsupported; fall through to Wait.
		s.log.Debug("signal service", "pid", pid, "error", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		s.log.Info("service exited", "pid", pid, "error", err)
	case <-time.After(TerminateTimeout):
		s.log.Warn("service ignored termination signal, killing", "pid", pid)
		_ = cmd.Process.Kill()
		<-done
	}
}

func (s *Supervisor) shutdown() {
	s.stopProcess()
	s.setState(StateStopped)
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	old := s.state
	s.state = state
	s.mu.Unlock()
	if old != state {
		s.log.Debug("state transition", "from", old.String(), "to", state.String())
	}
}
