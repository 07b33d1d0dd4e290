package cm

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/chanyoung/copymachine/pkg/util/config"
	"github.com/chanyoung/copymachine/pkg/util/mlog"
	"github.com/chanyoung/copymachine/pkg/util/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger *logrus.Entry

// Bootstrap build up the copy machine daemon and serves until the
// terminate signal.
func Bootstrap(cfg config.Cm) error {
	// Setup logger.
	if err := mlog.Init(cfg.LogLocation); err != nil {
		return errors.Wrap(err, "init log failed")
	}
	logger = mlog.GetPackageLogger("app/cm")

	ctxLogger := mlog.GetFunctionLogger(logger, "Bootstrap")
	ctxLogger.Info("start bootstrap cm ...")

	// Generates cm ID.
	if cfg.ID == "" {
		cfg.ID = uuid.Short()
	}

	n, err := newNode(&cfg)
	if err != nil {
		return errors.Wrap(err, "bootstrap cm failed")
	}

	ctxLogger.WithField("id", cfg.ID).Info("bootstrap cm succeeded")

	// Make channel for Ctrl-C or other terminate signal is received.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	<-sigc
	ctxLogger.Info("Received stop signal from OS")
	n.stop()
	return nil
}
