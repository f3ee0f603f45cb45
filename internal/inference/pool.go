// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package inference

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/x0vs/ethos/internal/metrics"
)

var ErrInstanceNotFound = errors.New("inference: instance not found")

// InstanceView is the wire representation of one pool entry.
type InstanceView struct {
	ID      string `json:"id"`
	Binary  string `json:"binary"`
	Model   string `json:"model"`
	Port    int    `json:"port"`
	Ctx     int    `json:"ctx"`
	Running bool   `json:"running"`
	Healthy bool   `json:"healthy"`
}

// Pool is the registry of managed llama-server instances.
type Pool struct {
	mu        sync.Mutex
	instances map[string]*Instance
	stopGrace time.Duration

	// onStart/onStop let the sandbox mirror running servers as grid
	// agents.
	onStart func(id string)
	onStop  func(id string)

	// downNotify holds one once-guarded teardown per started instance,
	// shared between explicit stops and the exit watcher so a server
	// that dies on its own still clears its gauges and mirror agent.
	downNotify map[string]func()
}

// NewPool builds an empty registry. stopGrace bounds how long Stop waits
// before escalating to SIGKILL.
func NewPool(stopGrace time.Duration) *Pool {
	if stopGrace <= 0 {
		stopGrace = 5 * time.Second
	}
	return &Pool{
		instances:  make(map[string]*Instance),
		stopGrace:  stopGrace,
		downNotify: make(map[string]func()),
	}
}

// OnLifecycle registers callbacks invoked after a successful start and
// after a stop or kill.
func (p *Pool) OnLifecycle(onStart, onStop func(id string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStart, p.onStop = onStart, onStop
}

// Add registers a new instance and returns its id.
func (p *Pool) Add(binary, model string, port, ctx int) (*InstanceView, error) {
	id := uuid.NewString()
	in, err := NewInstance(id, binary, model, port, ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.instances[id] = in
	p.mu.Unlock()
	p.refreshGauges()
	v := p.view(in)
	return &v, nil
}

// Get returns one instance view.
func (p *Pool) Get(id string) (*InstanceView, error) {
	in, err := p.instance(id)
	if err != nil {
		return nil, err
	}
	v := p.view(in)
	return &v, nil
}

// List returns all instances sorted by port.
func (p *Pool) List() []InstanceView {
	p.mu.Lock()
	ins := make([]*Instance, 0, len(p.instances))
	for _, in := range p.instances {
		ins = append(ins, in)
	}
	p.mu.Unlock()

	sort.Slice(ins, func(i, j int) bool { return ins[i].Port < ins[j].Port })
	out := make([]InstanceView, len(ins))
	for i, in := range ins {
		out[i] = p.view(in)
	}
	return out
}

// Remove deletes a stopped instance from the registry.
func (p *Pool) Remove(id string) error {
	in, err := p.instance(id)
	if err != nil {
		return err
	}
	if in.Running() {
		return ErrAlreadyRunning
	}
	p.mu.Lock()
	delete(p.instances, id)
	delete(p.downNotify, id)
	p.mu.Unlock()
	p.refreshGauges()
	return nil
}

// Start launches the instance and arms an exit watcher so a server that
// crashes on its own goes through the same teardown as an explicit stop.
func (p *Pool) Start(id string) error {
	in, err := p.instance(id)
	if err != nil {
		return err
	}
	if err := in.Start(); err != nil {
		return err
	}

	var once sync.Once
	notify := func() {
		once.Do(func() {
			p.refreshGauges()
			if cb := p.stopCallback(); cb != nil {
				cb(id)
			}
		})
	}
	exited := in.Done()
	p.mu.Lock()
	p.downNotify[id] = notify
	p.mu.Unlock()
	go func() {
		<-exited
		notify()
	}()

	p.refreshGauges()
	if cb := p.startCallback(); cb != nil {
		cb(id)
	}
	return nil
}

// Stop terminates the instance gracefully.
func (p *Pool) Stop(id string) error {
	return p.reap(id, func(in *Instance) error { return in.Stop(p.stopGrace) })
}

// Kill terminates the instance immediately.
func (p *Pool) Kill(id string) error {
	return p.reap(id, (*Instance).Kill)
}

func (p *Pool) reap(id string, stop func(*Instance) error) error {
	in, err := p.instance(id)
	if err != nil {
		return err
	}
	if err := stop(in); err != nil {
		return err
	}
	p.notifyDown(id)
	return nil
}

// notifyDown fires the instance's once-guarded teardown; a no-op when the
// exit watcher already ran it.
func (p *Pool) notifyDown(id string) {
	p.mu.Lock()
	n := p.downNotify[id]
	p.mu.Unlock()
	if n != nil {
		n()
	}
}

// Healthy probes the instance port.
func (p *Pool) Healthy(id string) (bool, error) {
	in, err := p.instance(id)
	if err != nil {
		return false, err
	}
	return in.Healthy(), nil
}

// StopAll terminates every running instance, for shutdown.
func (p *Pool) StopAll() {
	for _, v := range p.List() {
		if v.Running {
			_ = p.Stop(v.ID)
		}
	}
}

func (p *Pool) instance(id string) (*Instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	in, ok := p.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return in, nil
}

func (p *Pool) view(in *Instance) InstanceView {
	running := in.Running()
	return InstanceView{
		ID:      in.ID,
		Binary:  in.Binary,
		Model:   in.Model,
		Port:    in.Port,
		Ctx:     in.Ctx,
		Running: running,
		Healthy: running && in.Healthy(),
	}
}

func (p *Pool) startCallback() func(string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onStart
}

func (p *Pool) stopCallback() func(string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onStop
}

func (p *Pool) refreshGauges() {
	p.mu.Lock()
	running, stopped := 0, 0
	for _, in := range p.instances {
		if in.Running() {
			running++
		} else {
			stopped++
		}
	}
	p.mu.Unlock()
	metrics.SetPoolInstances("running", running)
	metrics.SetPoolInstances("stopped", stopped)
}
