// Package shutdown cancels in-flight work on SIGINT/SIGTERM and releases
// registered resources in reverse order once the work has drained.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"part-identifier/internal/logger"
)

// DefaultTimeout bounds how long a single component may take to close.
const DefaultTimeout = 10 * time.Second

type Closer interface {
	Close() error
}

type named struct {
	name   string
	closer Closer
}

type Manager struct {
	components []named
	logger     logger.Logger
	timeout    time.Duration
	mu         sync.Mutex
	once       sync.Once
	done       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	err        error
}

func NewManager(parent context.Context, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(parent)

	return &Manager{
		logger:  log,
		timeout: DefaultTimeout,
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetTimeout changes the per-component close deadline.
func (m *Manager) SetTimeout(d time.Duration) {
	m.mu.Lock()
	m.timeout = d
	m.mu.Unlock()
}

func (m *Manager) Register(name string, c Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.components = append(m.components, named{name: name, closer: c})
}

// Listen cancels Context on the first SIGINT or SIGTERM. Components are not
// closed there: work still running may be using them. The returned function
// stops listening.
func (m *Manager) Listen() (stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	quit := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			m.logger.Info("ShutdownManager", "shutdown signal received", map[string]interface{}{
				"signal": sig.String(),
			})
			m.cancel()
		case <-quit:
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			signal.Stop(sigChan)
			close(quit)
		})
	}
}

// Shutdown cancels Context and closes every component, last registered
// first. It runs once; later calls return the first result.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		m.mu.Lock()
		components := append([]named(nil), m.components...)
		timeout := m.timeout
		m.mu.Unlock()

		m.logger.Debug("ShutdownManager", "shutdown sequence initiated", map[string]interface{}{
			"components": len(components),
		})

		m.cancel()

		var errs []error
		for i := len(components) - 1; i >= 0; i-- {
			if err := m.closeOne(components[i], timeout); err != nil {
				errs = append(errs, err)
			}
		}
		m.err = errors.Join(errs...)
		close(m.done)

		m.logger.Debug("ShutdownManager", "shutdown sequence completed", nil)
	})
	<-m.done
	return m.err
}

func (m *Manager) closeOne(c named, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- c.closer.Close() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("close %s: %w", c.name, err)
		}
		return nil
	case <-time.After(timeout):
		m.logger.Warning("ShutdownManager", "component shutdown timeout", map[string]interface{}{
			"component": c.name,
		})
		return fmt.Errorf("close %s: timed out after %s", c.name, timeout)
	}
}

// Context is cancelled by a signal or by Shutdown.
func (m *Manager) Context() context.Context {
	return m.ctx
}

func (m *Manager) Done() <-chan struct{} {
	return m.done
}
