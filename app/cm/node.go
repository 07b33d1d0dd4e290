package cm

import (
	"strconv"
	"strings"
	"time"

	"github.com/chanyoung/copymachine/app/cm/delivery"
	"github.com/chanyoung/copymachine/app/cm/domain/model/job"
	"github.com/chanyoung/copymachine/app/cm/domain/model/machine"
	"github.com/chanyoung/copymachine/app/cm/infrastructure/engine"
	"github.com/chanyoung/copymachine/app/cm/infrastructure/repository/inmem"
	"github.com/chanyoung/copymachine/app/cm/infrastructure/repository/mysql"
	"github.com/chanyoung/copymachine/app/cm/usecase/history"
	cmachine "github.com/chanyoung/copymachine/app/cm/usecase/machine"
	"github.com/chanyoung/copymachine/app/cm/usecase/trigger"
	"github.com/chanyoung/copymachine/pkg/fop"
	"github.com/chanyoung/copymachine/pkg/processor"
	"github.com/chanyoung/copymachine/pkg/util/config"
	"github.com/chanyoung/copymachine/pkg/util/mlog"
	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"
)

// sysfsCPU is the sysfs directory of the processors.
var sysfsCPU = "/sys/devices/system/cpu"

const (
	defaultMachines   = "repair,rebalance"
	defaultFomWorkers = 4
	defaultEngineTick = 100 * time.Millisecond
	defaultObjects    = 1000
	defaultObjectSize = "1MiB"
	historyBacklog    = 1024
	inmemHistoryLimit = 4096
)

// node is the copy machine context of the daemon. Everything the
// protocol needs hangs off it, nothing is process global.
type node struct {
	cfg *config.Cm

	processors *processor.Service
	engine     *engine.Engine
	history    *history.Service
	manager    *cmachine.Manager
	registry   *fop.Registry
	trigger    *trigger.Service
	delivery   *delivery.Service
}

// parseMachines returns the machine types of the comma separated list.
func parseMachines(s string) ([]machine.Type, error) {
	if s == "" {
		s = defaultMachines
	}

	types := make([]machine.Type, 0)
	seen := make(map[machine.Type]bool)
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if seen[machine.Type(t)] {
			return nil, errors.Errorf("machine type %s given twice", t)
		}
		seen[machine.Type(t)] = true
		types = append(types, machine.Type(t))
	}
	if len(types) == 0 {
		return nil, errors.New("no machine type")
	}
	return types, nil
}

func engineConfig(cfg *config.Cm) (engine.Config, error) {
	ec := engine.Config{
		Tick:    defaultEngineTick,
		Objects: defaultObjects,
	}

	if cfg.EngineTick != "" {
		tick, err := time.ParseDuration(cfg.EngineTick)
		if err != nil {
			return ec, errors.Wrap(err, "invalid engine tick")
		}
		ec.Tick = tick
	}

	if cfg.EngineObjects != "" {
		objs, err := strconv.ParseUint(cfg.EngineObjects, 10, 64)
		if err != nil {
			return ec, errors.Wrap(err, "invalid engine objects")
		}
		ec.Objects = objs
	}

	size := cfg.EngineObjectSize
	if size == "" {
		size = defaultObjectSize
	}
	objSize, err := humanize.ParseBytes(size)
	if err != nil {
		return ec, errors.Wrap(err, "invalid engine object size")
	}
	ec.ObjectSize = objSize

	return ec, nil
}

func fomWorkers(cfg *config.Cm) (int, error) {
	if cfg.FomWorkers == "" {
		return defaultFomWorkers, nil
	}
	n, err := strconv.Atoi(cfg.FomWorkers)
	if err != nil {
		return 0, errors.Wrap(err, "invalid number of fom workers")
	}
	return n, nil
}

func newJobRepository(cfg *config.Cm) (job.Repository, error) {
	switch cfg.History {
	case "", "inmem":
		return inmem.NewJobRepository(inmemHistoryLimit), nil
	case "mysql":
		return mysql.NewJobRepository(&cfg.MySQL)
	default:
		return nil, errors.Errorf("not supported history store %q", cfg.History)
	}
}

// newNode builds up the copy machine node and starts serving. A failure
// leaves nothing running.
func newNode(cfg *config.Cm) (n *node, err error) {
	ctxLogger := mlog.GetFunctionLogger(logger, "newNode")

	types, err := parseMachines(cfg.Machines)
	if err != nil {
		return nil, err
	}
	ec, err := engineConfig(cfg)
	if err != nil {
		return nil, err
	}
	workers, err := fomWorkers(cfg)
	if err != nil {
		return nil, err
	}

	n = &node{cfg: cfg}
	defer func() {
		if err != nil {
			n.stop()
			n = nil
		}
	}()

	// Setup processors.
	n.processors = processor.New(sysfsCPU)
	if err = n.processors.Init(); err != nil {
		return n, errors.Wrap(err, "failed to init processors")
	}

	// Setup the engine.
	if n.engine, err = engine.New(ec, n.processors, metrics.DefaultRegistry); err != nil {
		return n, err
	}

	// Setup the run history.
	repo, err := newJobRepository(cfg)
	if err != nil {
		return n, err
	}
	n.history = history.NewService(repo, historyBacklog, metrics.DefaultRegistry)

	// Setup the instances, one per machine type.
	n.manager = cmachine.NewManager(n.engine, n.history)
	for _, t := range types {
		if _, err = n.manager.Create(t); err != nil {
			return n, err
		}
	}

	// Setup the execution of the fops and register the descriptors.
	n.registry = fop.NewRegistry()
	if n.trigger, err = trigger.NewService(n.registry, n.manager, n.engine, workers, metrics.DefaultRegistry); err != nil {
		return n, err
	}
	for _, t := range types {
		if err = n.trigger.Register(t); err != nil {
			return n, err
		}
	}

	// Setup delivery service.
	if n.delivery, err = delivery.NewDeliveryService(cfg, n.registry, n.history, metrics.DefaultRegistry); err != nil {
		return n, err
	}
	if err = n.delivery.Run(); err != nil {
		n.delivery = nil
		return n, err
	}

	ctxLogger.WithField("machines", types).Info("copy machine node is up")
	return n, nil
}

// stop tears the node down in the reverse order of newNode.
func (n *node) stop() {
	ctxLogger := mlog.GetMethodLogger(logger, "node.stop")

	if n.delivery != nil {
		if err := n.delivery.Stop(); err != nil {
			ctxLogger.Error(err)
		}
	}
	if n.trigger != nil {
		if err := n.trigger.Stop(); err != nil {
			ctxLogger.Error(err)
		}
	}
	if n.registry != nil {
		if err := n.registry.Close(); err != nil {
			ctxLogger.Error(err)
		}
	}
	if n.manager != nil {
		n.manager.Stop()
	}
	if n.engine != nil {
		n.engine.Stop()
	}
	if n.history != nil {
		if err := n.history.Stop(); err != nil {
			ctxLogger.Error(err)
		}
	}
	if n.processors != nil {
		n.processors.Fini()
	}
}
