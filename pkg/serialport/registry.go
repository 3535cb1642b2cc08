// Package serialport provides a process-wide per-path mutex registry so
// that multiple UPS probes sharing one serial device never interleave
// their I/O, plus a minimal query helper for the "QS"/"Q1"-style ASCII
// protocol common UPS units speak over a serial line.
package serialport

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

var (
	registryMu sync.Mutex
	registry   = map[string]*sync.Mutex{}
)

// Lock returns the mutex guarding the given serial device path, creating
// it on first use. Lazy creation is itself guarded by registryMu so two
// probes racing to open the same port for the first time never both win.
func Lock(path string) *sync.Mutex {
	registryMu.Lock()
	defer registryMu.Unlock()
	m, ok := registry[path]
	if !ok {
		m = &sync.Mutex{}
		registry[path] = m
	}
	return m
}

// Query opens path, writes command, and returns the single line response
// read back before the port is closed. Callers must hold Lock(path) for
// the duration of the call.
func Query(ctx context.Context, path string, baud int, command string, timeout time.Duration) (string, error) {
	mode := &serial.Mode{BaudRate: baud}
	port, err := serial.Open(path, mode)
	if err != nil {
		return "", fmt.Errorf("serialport: open %s: %w", path, err)
	}
	defer port.Close()

	if err := port.SetReadTimeout(timeout); err != nil {
		return "", fmt.Errorf("serialport: set timeout: %w", err)
	}
	if _, err := port.Write([]byte(command)); err != nil {
		return "", fmt.Errorf("serialport: write: %w", err)
	}

	reader := bufio.NewReader(port)
	line, err := reader.ReadString('\r')
	if err != nil {
		return "", fmt.Errorf("serialport: read: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
