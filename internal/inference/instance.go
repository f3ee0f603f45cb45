// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package inference supervises llama-server instances: spawn, health
// probe, graceful stop and group kill.
package inference

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/x0vs/ethos/internal/log"
	"github.com/x0vs/ethos/internal/metrics"
	"github.com/x0vs/ethos/internal/procgroup"
)

// DefaultHost is the only interface instances bind to.
const DefaultHost = "127.0.0.1"

// Port and context-size bounds for new instances.
const (
	PortMin = 1000
	PortMax = 65535
	CtxMin  = 512
	CtxMax  = 32768
)

var (
	ErrAlreadyRunning = errors.New("inference: server already running")
	ErrNotRunning     = errors.New("inference: server not running")
	ErrPortBusy       = errors.New("inference: port already in use")
)

// PortOpen reports whether the port accepts TCP connections on
// DefaultHost.
func PortOpen(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(DefaultHost, strconv.Itoa(port)), time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Instance is one planned or running llama-server.
type Instance struct {
	ID     string `json:"id"`
	Binary string `json:"binary"`
	Model  string `json:"model"`
	Port   int    `json:"port"`
	Ctx    int    `json:"ctx"`

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
	logger zerolog.Logger
}

// NewInstance validates paths and bounds and returns a stopped instance.
func NewInstance(id, binary, model string, port, ctx int) (*Instance, error) {
	if _, err := os.Stat(binary); err != nil {
		return nil, fmt.Errorf("inference: binary %q: %w", binary, err)
	}
	if _, err := os.Stat(model); err != nil {
		return nil, fmt.Errorf("inference: model %q: %w", model, err)
	}
	if !strings.EqualFold(filepath.Ext(model), ".gguf") {
		return nil, fmt.Errorf("inference: model %q is not a .gguf file", model)
	}
	if port < PortMin || port > PortMax {
		return nil, fmt.Errorf("inference: port %d out of range [%d,%d]", port, PortMin, PortMax)
	}
	if ctx < CtxMin || ctx > CtxMax {
		return nil, fmt.Errorf("inference: ctx size %d out of range [%d,%d]", ctx, CtxMin, CtxMax)
	}
	return &Instance{
		ID:     id,
		Binary: binary,
		Model:  model,
		Port:   port,
		Ctx:    ctx,
		logger: xlog.WithComponent("inference").With().Str("server_id", id).Int("port", port).Logger(),
	}, nil
}

// Running reports whether the child process is alive.
func (in *Instance) Running() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.runningLocked()
}

func (in *Instance) runningLocked() bool {
	if in.cmd == nil {
		return false
	}
	select {
	case <-in.exited:
		return false
	default:
		return true
	}
}

// Start spawns the server in its own process group and streams its
// output into the log. It refuses when the instance is already running
// or the port is taken.
func (in *Instance) Start() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.runningLocked() {
		metrics.IncPoolStart("already_running")
		return ErrAlreadyRunning
	}
	if PortOpen(in.Port) {
		metrics.IncPoolStart("port_busy")
		return fmt.Errorf("%w: %d", ErrPortBusy, in.Port)
	}

	cmd := exec.Command(in.Binary,
		"--model", in.Model,
		"--port", strconv.Itoa(in.Port),
		"--host", DefaultHost,
		"--ctx-size", strconv.Itoa(in.Ctx),
	)
	procgroup.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		metrics.IncPoolStart("spawn_error")
		return fmt.Errorf("inference: stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	in.logger.Info().Str("model", filepath.Base(in.Model)).Int("ctx", in.Ctx).
		Msg("starting llama-server")
	if err := cmd.Start(); err != nil {
		metrics.IncPoolStart("spawn_error")
		return fmt.Errorf("inference: spawn: %w", err)
	}

	in.cmd = cmd
	in.exited = make(chan struct{})
	go in.stream(stdout)
	go func(cmd *exec.Cmd, exited chan struct{}) {
		err := cmd.Wait()
		close(exited)
		ev := in.logger.Info()
		if err != nil {
			ev = in.logger.Warn().Err(err)
		}
		ev.Msg("llama-server exited")
	}(cmd, in.exited)

	metrics.IncPoolStart("success")
	return nil
}

func (in *Instance) stream(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		in.logger.Debug().Msg(sc.Text())
	}
}

// Stop terminates the process group gracefully: SIGTERM, then SIGKILL
// after the grace period.
func (in *Instance) Stop(grace time.Duration) error {
	return in.reap(grace)
}

// Kill terminates the process group immediately.
func (in *Instance) Kill() error {
	return in.reap(0)
}

func (in *Instance) reap(grace time.Duration) error {
	in.mu.Lock()
	if !in.runningLocked() {
		in.mu.Unlock()
		return ErrNotRunning
	}
	pid := in.cmd.Process.Pid
	exited := in.exited
	in.mu.Unlock()

	if err := procgroup.KillGroup(pid, grace, grace+5*time.Second); err != nil {
		return fmt.Errorf("inference: kill group %d: %w", pid, err)
	}
	<-exited
	in.logger.Info().Dur("grace", grace).Msg("llama-server stopped")
	return nil
}

// Done returns a channel closed when the current child process exits,
// or nil when the instance has never been started.
func (in *Instance) Done() <-chan struct{} {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.exited
}

// Healthy probes the instance port.
func (in *Instance) Healthy() bool {
	return PortOpen(in.Port)
}
