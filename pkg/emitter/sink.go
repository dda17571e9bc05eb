package emitter

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// OutPorts lists the names of the MIDI output ports the registered driver
// can see. It is empty when no driver is linked in.
func OutPorts() []string {
	var names []string
	for _, port := range midi.GetOutPorts() {
		names = append(names, port.String())
	}
	return names
}

// PortSink sends events to a hardware or virtual MIDI output port.
type PortSink struct {
	mu   sync.Mutex
	out  drivers.Out
	send func(msg midi.Message) error
}

// OpenPort opens the output port whose name contains name.
func OpenPort(name string) (*PortSink, error) {
	out, err := midi.FindOutPort(name)
	if err != nil {
		return nil, fmt.Errorf("%w: can't find output port %q: %v", ErrSinkUnavailable, name, err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("%w: can't open %s: %v", ErrSinkUnavailable, out, err)
	}
	return &PortSink{out: out, send: send}, nil
}

// Name returns the port name.
func (s *PortSink) Name() string {
	if s == nil || s.out == nil {
		return ""
	}
	return s.out.String()
}

// Available reports whether the port is still open.
func (s *PortSink) Available() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out != nil && s.out.IsOpen()
}

// Send writes one event to the port.
func (s *PortSink) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return ErrSinkUnavailable
	}
	return s.send(ev.Message())
}

// Close closes the port. Later sends fail with ErrSinkUnavailable.
func (s *PortSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return nil
	}
	err := s.out.Close()
	s.out = nil
	return err
}

// LogSink writes every event to a logger instead of a device. It lets
// playback run on machines without MIDI hardware.
type LogSink struct {
	Logger *log.Logger
}

// Available reports whether a logger is set.
func (s LogSink) Available() bool { return s.Logger != nil }

// Send logs the event at debug level.
func (s LogSink) Send(ev Event) error {
	s.Logger.Debug(ev.Kind.String(), "channel", ev.Channel, "note", ev.Note, "velocity", ev.Velocity)
	return nil
}
