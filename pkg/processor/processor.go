// Package processor enumerates the logical processors of the node and
// describes their numa and cache topology. The copy engine uses it for
// placing its workers.
package processor

import (
	"sync"

	"github.com/chanyoung/copymachine/pkg/bitmap"
	"github.com/chanyoung/copymachine/pkg/util/mlog"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger *logrus.Entry

// Nr is a processor identifier.
type Nr uint32

// InvalidID is returned when the processor can't be identified.
const InvalidID Nr = ^Nr(0)

var (
	// ErrInvalidArgument is returned on unknown processor or missing output.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAlreadyInitialized is returned by Init without intervening Fini.
	ErrAlreadyInitialized = errors.New("processors already initialized")
	// ErrNotInitialized is returned when the service is used before Init.
	ErrNotInitialized = errors.New("processors not initialized")
)

// Descr describes a processor. Processors sharing a cache have the same
// cache id.
type Descr struct {
	ID       Nr
	NumaNode uint32
	L1       uint32
	L1Size   uint64
	L2       uint32
	L2Size   uint64
	Pipeline uint32
}

// Topology is what the copy engine needs to know about the processors.
type Topology interface {
	MaxProcessorCount() Nr
	Online(m *bitmap.Bitmap) error
	Describe(id Nr, d *Descr) error
}

// Service caches the processor information of the node.
// Init and Fini are not safe to call concurrently; the queries are
// read-only after Init.
type Service struct {
	root string

	initialized bool
	max         Nr
	possible    *bitmap.Bitmap
	available   *bitmap.Bitmap
	online      *bitmap.Bitmap
	descrs      map[Nr]Descr

	mu sync.RWMutex
}

// New returns a service reading the given sysfs cpu directory,
// normally "/sys/devices/system/cpu".
func New(root string) *Service {
	logger = mlog.GetPackageLogger("pkg/processor")

	return &Service{root: root}
}

// Init populates the cache. It must not be called twice without Fini.
func (s *Service) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return ErrAlreadyInitialized
	}

	info, err := scan(s.root)
	if err != nil {
		ctxLogger := mlog.GetMethodLogger(logger, "Service.Init")
		ctxLogger.WithField("root", s.root).Warnf("sysfs scan failed, falling back to affinity: %v", err)
		info = scanAffinity()
	}

	s.max = info.max
	s.possible = info.possible
	s.available = info.available
	s.online = info.online
	s.descrs = info.descrs
	s.initialized = true
	return nil
}

// Fini drops the cache.
func (s *Service) Fini() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = false
	s.max = 0
	s.possible, s.available, s.online = nil, nil, nil
	s.descrs = nil
}

// MaxProcessorCount returns the maximum processors this node can handle.
func (s *Service) MaxProcessorCount() Nr {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.max
}

// Possible fills the map with the possible processors.
func (s *Service) Possible(m *bitmap.Bitmap) error {
	return s.fill(m, func() *bitmap.Bitmap { return s.possible })
}

// Available fills the map with the processors configured in the OS.
func (s *Service) Available(m *bitmap.Bitmap) error {
	return s.fill(m, func() *bitmap.Bitmap { return s.available })
}

// Online fills the map with the processors currently in use.
func (s *Service) Online(m *bitmap.Bitmap) error {
	return s.fill(m, func() *bitmap.Bitmap { return s.online })
}

func (s *Service) fill(m *bitmap.Bitmap, src func() *bitmap.Bitmap) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	if m == nil || m.Nr() < int(s.max) {
		return errors.Wrap(ErrInvalidArgument, "bitmap is smaller than the max processor count")
	}

	m.CopyFrom(src())
	return nil
}

// Describe fills d with the description of the processor.
func (s *Service) Describe(id Nr, d *Descr) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	if d == nil {
		return errors.Wrap(ErrInvalidArgument, "nil descriptor")
	}

	descr, ok := s.descrs[id]
	if !ok {
		return errors.Wrapf(ErrInvalidArgument, "unknown processor %d", id)
	}
	*d = descr
	return nil
}
