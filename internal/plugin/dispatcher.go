package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ayusman/airdeck/internal/logging"
)

// Binding selects the plugin action run for a navigation action.
type Binding struct {
	Plugin string
	Action string
	Config json.RawMessage
}

// BindingSource looks up the bindings for a navigation action.
type BindingSource interface {
	BindingsFor(navAction string) ([]Binding, error)
}

// Dispatcher runs bound plugin actions for navigation events on a single
// worker goroutine, in the order the events happened.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	source   BindingSource

	queue  chan Navigation
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewDispatcher creates a Dispatcher holding up to queueSize pending events.
func NewDispatcher(manager *Manager, executor *Executor, source BindingSource, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Dispatcher{
		manager:  manager,
		executor: executor,
		source:   source,
		queue:    make(chan Navigation, queueSize),
	}
}

// Start launches the worker. It stops when ctx ends or Close is called.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case nav := <-d.queue:
				d.Run(ctx, nav)
			}
		}
	}()
}

// Dispatch queues nav without blocking. It returns false if the event was
// dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Dispatch(nav Navigation) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	select {
	case d.queue <- nav:
		return true
	default:
		logging.Warn("plugin queue full, dropping navigation", "action", nav.Action)
		return false
	}
}

// Run executes every binding for nav synchronously and returns the first
// error. Failures of individual bindings do not stop the others.
func (d *Dispatcher) Run(ctx context.Context, nav Navigation) error {
	bindings, err := d.source.BindingsFor(nav.Action)
	if err != nil {
		return fmt.Errorf("load bindings for %s: %w", nav.Action, err)
	}

	var first error
	for _, b := range bindings {
		if err := d.execute(ctx, nav, b); err != nil {
			logging.Warn("plugin action failed", "plugin", b.Plugin, "action", b.Action, "err", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (d *Dispatcher) execute(ctx context.Context, nav Navigation, b Binding) error {
	p, err := d.manager.Get(b.Plugin)
	if err != nil {
		return fmt.Errorf("%s: %w", b.Plugin, err)
	}
	if !p.Supports(b.Action) {
		return fmt.Errorf("plugin %s does not support action %q", b.Plugin, b.Action)
	}

	resp, err := d.executor.Execute(ctx, p, &Request{
		Action:     b.Action,
		Navigation: nav,
		Config:     b.Config,
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("plugin %s: %s", b.Plugin, resp.Error)
	}

	logging.Debug("plugin action done", "plugin", b.Plugin, "action", b.Action, "nav", nav.Action)
	return nil
}

// Close stops the worker, dropping pending events.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}
