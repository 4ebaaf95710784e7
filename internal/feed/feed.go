// Package feed reads the fused sensor stream from the head-unit serial port
// and fans lines out to subscribers. One device, many readers: the estimator
// loop, an active calibration session, and any diagnostic tail each get their
// own channel.
package feed

import (
	"bufio"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var ErrWriteFailed = fmt.Errorf("failed to write to sensor port")

// Porter is the minimal serial port surface the feed needs. The abstraction
// keeps unit tests off real hardware.
type Porter interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Source is the device-independent mux surface: the real serial port and the
// dev-mode synthetic feed both satisfy it.
type Source interface {
	Subscribe() (string, chan string)
	Unsubscribe(id string)
	SendCommand(command string) error
	Monitor(ctx context.Context) error
	Close() error
}

// Mux multiplexes one sensor port to any number of line subscribers. Slow
// subscribers drop lines rather than stalling the tick stream.
type Mux[T Porter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// NewMux wraps an open sensor port.
func NewMux[T Porter](port T) *Mux[T] {
	return &Mux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// Subscribe registers a new line channel. The returned ID identifies the
// channel for Unsubscribe.
func (m *Mux[T]) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, 8)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (m *Mux[T]) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// SendCommand writes one command line to the head unit.
func (m *Mux[T]) SendCommand(command string) error {
	m.commandMu.Lock()
	defer m.commandMu.Unlock()
	if len(command) == 0 || command[len(command)-1] != '\n' {
		command += "\n"
	}
	n, err := m.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads lines from the port and delivers them to all subscribers
// until the context is cancelled, the port closes, or a read error occurs.
func (m *Mux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan runs in its own goroutine so the outer loop
	// can still observe context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				return scan.Err()
			}
			m.closingMu.Lock()
			if m.closing {
				m.closingMu.Unlock()
				return nil
			}
			m.closingMu.Unlock()

			m.subscriberMu.Lock()
			for _, ch := range m.subscribers {
				select {
				case ch <- line:
				default:
					// Drop rather than block the tick stream.
				}
			}
			m.subscriberMu.Unlock()
		}
	}
}

// Close closes every subscriber channel and the underlying port.
func (m *Mux[T]) Close() error {
	m.closingMu.Lock()
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	return m.port.Close()
}
