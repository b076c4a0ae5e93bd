package main

import (
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/docker/go-plugins-helpers/sdk"
	"github.com/sirupsen/logrus"

	"github.com/baraverkstad/docker-log-ingest/driver"
)

const socketName = "ingest"

const manifest = `{"Implements": ["LoggingDriver"]}`

func main() {
	cfg, err := driver.ConfigFromEnv()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logrus.SetLevel(cfg.LogLevel)

	h := sdk.NewHandler(manifest)
	d := driver.New(cfg)
	d.RegisterHandlers(h)

	logrus.WithFields(logrus.Fields{
		"socket":     socketName,
		"ingest_api": cfg.IngestURL,
	}).Info("starting plugin server")

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logrus.WithError(err).Warn("notifying systemd")
	}

	if err := h.ServeUnix(socketName, 0); err != nil {
		logrus.WithError(err).Fatal("plugin server failed")
	}
}
