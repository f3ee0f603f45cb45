// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package inference

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeServer writes a shell script that sleeps, standing in for
// llama-server.
func fakeServer(t *testing.T) (binary, model string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell fixture")
	}
	dir := t.TempDir()
	binary = filepath.Join(dir, "llama-server")
	script := "#!/bin/sh\necho booted\nsleep 60\n"
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o755))
	model = filepath.Join(dir, "tiny.gguf")
	require.NoError(t, os.WriteFile(model, []byte("gguf"), 0o644))
	return binary, model
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestPortOpen(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	assert.True(t, PortOpen(port))

	l.Close()
	assert.False(t, PortOpen(port))
}

func TestNewInstance_Validation(t *testing.T) {
	binary, model := fakeServer(t)

	_, err := NewInstance("a", binary, model, 8080, 4096)
	require.NoError(t, err)

	_, err = NewInstance("a", filepath.Join(t.TempDir(), "nope"), model, 8080, 4096)
	assert.Error(t, err)

	notGGUF := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(notGGUF, []byte("x"), 0o644))
	_, err = NewInstance("a", binary, notGGUF, 8080, 4096)
	assert.ErrorContains(t, err, "gguf")

	_, err = NewInstance("a", binary, model, 80, 4096)
	assert.ErrorContains(t, err, "port")

	_, err = NewInstance("a", binary, model, 8080, 100)
	assert.ErrorContains(t, err, "ctx")
}

func TestInstance_StartStopLifecycle(t *testing.T) {
	binary, model := fakeServer(t)
	in, err := NewInstance("a", binary, model, freePort(t), 4096)
	require.NoError(t, err)

	assert.False(t, in.Running())
	assert.ErrorIs(t, in.Stop(time.Second), ErrNotRunning)

	require.NoError(t, in.Start())
	assert.True(t, in.Running())
	assert.ErrorIs(t, in.Start(), ErrAlreadyRunning)

	require.NoError(t, in.Kill())
	assert.False(t, in.Running())
}

func TestInstance_StartRefusesBusyPort(t *testing.T) {
	binary, model := fakeServer(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	in, err := NewInstance("a", binary, model, port, 4096)
	require.NoError(t, err)
	assert.ErrorIs(t, in.Start(), ErrPortBusy)
}

func TestPool_Registry(t *testing.T) {
	binary, model := fakeServer(t)
	pool := NewPool(time.Second)

	v1, err := pool.Add(binary, model, 9101, 4096)
	require.NoError(t, err)
	v2, err := pool.Add(binary, model, 9001, 2048)
	require.NoError(t, err)

	list := pool.List()
	require.Len(t, list, 2)
	// Sorted by port.
	assert.Equal(t, v2.ID, list[0].ID)
	assert.Equal(t, v1.ID, list[1].ID)

	got, err := pool.Get(v1.ID)
	require.NoError(t, err)
	assert.Equal(t, 9101, got.Port)
	assert.False(t, got.Running)

	_, err = pool.Get("missing")
	assert.ErrorIs(t, err, ErrInstanceNotFound)

	require.NoError(t, pool.Remove(v2.ID))
	assert.Len(t, pool.List(), 1)
}

func TestPool_LifecycleCallbacks(t *testing.T) {
	binary, model := fakeServer(t)
	pool := NewPool(time.Second)

	var started, stopped []string
	pool.OnLifecycle(
		func(id string) { started = append(started, id) },
		func(id string) { stopped = append(stopped, id) },
	)

	v, err := pool.Add(binary, model, freePort(t), 4096)
	require.NoError(t, err)

	require.NoError(t, pool.Start(v.ID))
	require.NoError(t, pool.Kill(v.ID))

	assert.Equal(t, []string{v.ID}, started)
	assert.Equal(t, []string{v.ID}, stopped)

	healthy, err := pool.Healthy(v.ID)
	require.NoError(t, err)
	assert.False(t, healthy)
}

func TestPool_SelfExitRunsTeardown(t *testing.T) {
	binary, model := fakeServer(t)
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\necho booted\nsleep 0.2\nexit 3\n"), 0o755))

	pool := NewPool(time.Second)
	stopped := make(chan string, 1)
	pool.OnLifecycle(nil, func(id string) { stopped <- id })

	v, err := pool.Add(binary, model, freePort(t), 4096)
	require.NoError(t, err)
	require.NoError(t, pool.Start(v.ID))

	select {
	case id := <-stopped:
		assert.Equal(t, v.ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("teardown did not run after the server exited on its own")
	}

	got, err := pool.Get(v.ID)
	require.NoError(t, err)
	assert.False(t, got.Running)
}

func TestPool_StopAll(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	binary, model := fakeServer(t)
	pool := NewPool(time.Second)

	v, err := pool.Add(binary, model, freePort(t), 4096)
	require.NoError(t, err)
	require.NoError(t, pool.Start(v.ID))

	pool.StopAll()
	got, err := pool.Get(v.ID)
	require.NoError(t, err)
	assert.False(t, got.Running)
}
