// Package diag carries range warnings and fatal configuration errors
// from device code to the enclosing simulator.
package diag

import (
	"errors"
	"fmt"
	"sync"

	"github.com/edp1096/toy-bsim4/internal/logger"
)

type Severity int

const (
	Warning Severity = iota
	Fatal
)

func (s Severity) String() string {
	if s == Fatal {
		return "fatal"
	}
	return "warning"
}

// Message kinds.
const (
	KindGeometry    = "geometry"
	KindSelector    = "selector"
	KindParameter   = "parameter"
	KindTemperature = "temperature"
	KindTopology    = "topology"
)

var ErrFatal = errors.New("fatal configuration error")

// Error is returned alongside a fatal report. It unwraps to ErrFatal.
type Error struct {
	Kind   string
	Device string
	Text   string
}

func (e *Error) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Text)
	}
	return fmt.Sprintf("%s: %s: %s", e.Device, e.Kind, e.Text)
}

func (e *Error) Unwrap() error { return ErrFatal }

type Message struct {
	Severity Severity
	Kind     string
	Device   string
	Text     string
}

type Reporter interface {
	Warnf(kind, format string, args ...any)
	Fatalf(kind, format string, args ...any) error
}

// LogReporter writes every message to a Logger and counts them.
type LogReporter struct {
	log    logger.Logger
	device string

	mu       *sync.Mutex
	warnings *int
	fatals   *int
}

func NewReporter(log logger.Logger) *LogReporter {
	if log == nil {
		log = logger.Default()
	}
	return &LogReporter{
		log:      log,
		mu:       &sync.Mutex{},
		warnings: new(int),
		fatals:   new(int),
	}
}

// For returns a reporter that tags messages with a device or model name.
// Counters are shared with the parent.
func (r *LogReporter) For(device string) *LogReporter {
	return &LogReporter{
		log:      r.log.With("device", device),
		device:   device,
		mu:       r.mu,
		warnings: r.warnings,
		fatals:   r.fatals,
	}
}

func (r *LogReporter) Warnf(kind, format string, args ...any) {
	r.mu.Lock()
	*r.warnings++
	r.mu.Unlock()
	r.log.Warn(fmt.Sprintf(format, args...), "kind", kind)
}

func (r *LogReporter) Fatalf(kind, format string, args ...any) error {
	r.mu.Lock()
	*r.fatals++
	r.mu.Unlock()
	err := &Error{Kind: kind, Device: r.device, Text: fmt.Sprintf(format, args...)}
	r.log.Error(err.Text, "kind", kind, "severity", Fatal.String())
	return err
}

func (r *LogReporter) Warnings() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.warnings
}

func (r *LogReporter) Fatals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.fatals
}

// Collector keeps messages in memory.
type Collector struct {
	mu       sync.Mutex
	Messages []Message
}

func (c *Collector) Warnf(kind, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Messages = append(c.Messages, Message{Severity: Warning, Kind: kind, Text: fmt.Sprintf(format, args...)})
}

func (c *Collector) Fatalf(kind, format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := Message{Severity: Fatal, Kind: kind, Text: fmt.Sprintf(format, args...)}
	c.Messages = append(c.Messages, msg)
	return &Error{Kind: kind, Text: msg.Text}
}

// Count returns the number of collected messages of the given severity.
func (c *Collector) Count(sev Severity) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.Messages {
		if m.Severity == sev {
			n++
		}
	}
	return n
}

// Has reports whether a message of the given severity and kind was collected.
func (c *Collector) Has(sev Severity, kind string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.Messages {
		if m.Severity == sev && m.Kind == kind {
			return true
		}
	}
	return false
}

// Discard is a Reporter that drops warnings and still builds fatal errors.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Warnf(string, string, ...any) {}

func (discard) Fatalf(kind, format string, args ...any) error {
	return &Error{Kind: kind, Text: fmt.Sprintf(format, args...)}
}
