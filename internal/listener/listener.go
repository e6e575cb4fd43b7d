// Package listener acquires debug output from attached keyboards: one
// reader goroutine per discovered console device, a supervisor loop that
// rescans for devices, and observer fan-out of every complete line.
package listener

import (
	"context"
	"sync"
	"time"

	serial "github.com/daedaluz/goserial"

	"github.com/Ikcelaks/qmk-sequence-transform/internal/console"
)

// Observer receives every complete newline-terminated record read from a
// device.
type Observer interface {
	Notify(message string)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(string)

// Notify implements Observer.
func (f ObserverFunc) Notify(message string) { f(message) }

// Options configures a Listener.
type Options struct {
	// Glob matches the console device nodes to monitor,
	// e.g. "/dev/ttyACM*".
	Glob string

	// PollInterval is the device rescan period.
	PollInterval time.Duration

	// ReadTimeout bounds a single device read so shutdown is prompt.
	ReadTimeout time.Duration

	Console *console.Console
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Glob == "" {
		out.Glob = "/dev/ttyACM*"
	}
	if out.PollInterval == 0 {
		out.PollInterval = 100 * time.Millisecond
	}
	if out.ReadTimeout == 0 {
		out.ReadTimeout = time.Second
	}
	return out
}

// Listener supervises device monitors and fans records out to observers.
type Listener struct {
	opts      Options
	observers []Observer

	mu   sync.Mutex
	live map[string]*monitor
	wg   sync.WaitGroup
}

// New builds a listener fanning out to the given observers.
func New(opts Options, observers ...Observer) *Listener {
	return &Listener{
		opts:      opts.withDefaults(),
		observers: observers,
		live:      map[string]*monitor{},
	}
}

// Run scans for devices and monitors each until ctx is canceled. Records
// from a device that disconnects are silently dropped; the device is picked
// up again on reappearance.
func (l *Listener) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.opts.PollInterval)
	defer ticker.Stop()

	for {
		l.removeDead()
		for _, path := range l.findDevices() {
			l.register(ctx, path)
		}

		select {
		case <-ctx.Done():
			l.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Listener) removeDead() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for path, m := range l.live {
		if m.dead() {
			if l.opts.Console != nil {
				l.opts.Console.Infof("console disconnected: %s", path)
			}
			delete(l.live, path)
		}
	}
}

func (l *Listener) register(ctx context.Context, path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.live[path]; ok {
		return
	}

	port, err := serial.Open(path, serial.NewOptions().SetReadTimeout(l.opts.ReadTimeout))
	if err != nil {
		if l.opts.Console != nil {
			l.opts.Console.Warnf("could not connect to %s: %v", path, err)
		}
		return
	}
	if err := port.MakeRaw(); err != nil {
		port.Close()
		if l.opts.Console != nil {
			l.opts.Console.Warnf("could not configure %s: %v", path, err)
		}
		return
	}

	if l.opts.Console != nil {
		l.opts.Console.Infof("console connected: %s", path)
	}
	m := newMonitor(port, l.observers)
	l.live[path] = m
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		m.run(ctx)
	}()
}
