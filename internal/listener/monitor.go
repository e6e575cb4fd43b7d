package listener

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"
)

func (l *Listener) findDevices() []string {
	paths, err := filepath.Glob(l.opts.Glob)
	if err != nil {
		return nil
	}
	return paths
}

// monitor reads one device and publishes complete lines to the observers.
type monitor struct {
	port      io.ReadCloser
	observers []Observer
	current   strings.Builder
	done      atomic.Bool
}

func newMonitor(port io.ReadCloser, observers []Observer) *monitor {
	return &monitor{port: port, observers: observers}
}

func (m *monitor) dead() bool { return m.done.Load() }

// run reads until the device disappears or ctx is canceled. Read errors end
// the monitor silently; the supervisor reaps it and reconnects if the
// device comes back.
func (m *monitor) run(ctx context.Context) {
	defer m.done.Store(true)
	defer m.port.Close()

	buf := make([]byte, 32)
	for ctx.Err() == nil {
		n, err := m.port.Read(buf)
		if err != nil {
			return
		}
		m.feed(buf[:n])
	}
}

// feed appends a chunk, dropping NUL padding, and notifies observers with
// every complete line.
func (m *monitor) feed(chunk []byte) {
	for _, b := range chunk {
		switch b {
		case 0:
		case '\n':
			line := m.current.String()
			m.current.Reset()
			for _, o := range m.observers {
				o.Notify(line)
			}
		default:
			m.current.WriteByte(b)
		}
	}
}
