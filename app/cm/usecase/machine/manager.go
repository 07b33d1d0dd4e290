package machine

import (
	"sort"
	"sync"

	"github.com/chanyoung/copymachine/app/cm/domain/model/machine"
	"github.com/chanyoung/copymachine/pkg/util/mlog"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger *logrus.Entry

// Manager holds the copy machine instances of one node, one per type.
// Instances are created at the bootstrap of the node. The manager does
// not interpret the instance state: it hands out instances and feeds
// them the engine events, in the order the engine emitted them.
type Manager struct {
	engine    Engine
	observer  Observer
	instances map[machine.Type]*Instance
	events    *eventQueue

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex
}

// NewManager returns a manager driving the engine. The observer may be nil.
func NewManager(e Engine, o Observer) *Manager {
	logger = mlog.GetPackageLogger("app/cm/usecase/machine")

	if o == nil {
		o = nopObserver{}
	}

	m := &Manager{
		engine:    e,
		observer:  o,
		instances: make(map[machine.Type]*Instance),
		events:    newEventQueue(),
		stopCh:    make(chan struct{}),
	}

	m.wg.Add(1)
	go m.run()
	return m
}

// Create makes the instance of the type.
func (m *Manager) Create(t machine.Type) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.instances[t]; ok {
		return nil, errors.Wrapf(ErrInstanceExists, "type %s", t)
	}

	i := newInstance(t, m.engine, m.events, m.observer)
	m.instances[t] = i

	ctxLogger := mlog.GetMethodLogger(logger, "Manager.Create")
	ctxLogger.WithField("type", t).Info("copy machine instance created")
	return i, nil
}

// Lookup returns the instance of the type.
func (m *Manager) Lookup(t machine.Type) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.instances[t]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownInstance, "type %s", t)
	}
	return i, nil
}

// Types returns the types of the instances, sorted.
func (m *Manager) Types() []machine.Type {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]machine.Type, 0, len(m.instances))
	for t := range m.instances {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// run is the engine notification path. Events of every instance are
// applied one by one in the order they were emitted.
func (m *Manager) run() {
	defer m.wg.Done()

	for {
		select {
		case <-m.events.notify:
			for _, e := range m.events.drain() {
				e.inst.handleEvent(e.gen, e.ev)
			}
		case <-m.stopCh:
			return
		}
	}
}

// Stop aborts the live runs, wakes the suspended executions and stops
// the notification path.
func (m *Manager) Stop() {
	m.once.Do(func() {
		m.mu.RLock()
		for _, i := range m.instances {
			i.close()
		}
		m.mu.RUnlock()

		close(m.stopCh)
		m.wg.Wait()
	})
}
