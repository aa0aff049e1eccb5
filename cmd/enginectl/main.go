// Command enginectl opens a storage instance, optionally running crash
// recovery or bootstrapping a fresh data directory, and exposes its
// Prometheus metrics over HTTP while it stays resident.
package main

import (
	"flag"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/SimonWaldherr/pagedb/internal/storage/config"
	"github.com/SimonWaldherr/pagedb/internal/storage/instance"
)

var (
	flagConfig  = flag.String("config", "", "path to a YAML config file (defaults are used if empty)")
	flagInit    = flag.Bool("init", false, "wipe the data directory and bootstrap a fresh catalog")
	flagServe   = flag.Bool("serve", false, "keep running and serve Prometheus metrics after opening")
	flagVerbose = flag.Bool("v", false, "verbose (debug-level) logging")
)

func main() {
	flag.Parse()
	if *flagVerbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg := config.Default()
	if *flagConfig != "" {
		loaded, err := config.Load(*flagConfig)
		if err != nil {
			logrus.WithError(err).Fatal("load config")
		}
		cfg = loaded
	}

	inst, err := instance.Open(cfg, *flagInit)
	if err != nil {
		logrus.WithError(err).Fatal("open instance")
	}
	defer func() {
		if err := inst.Shutdown(); err != nil {
			logrus.WithError(err).Error("shutdown")
		}
	}()

	if !*flagServe {
		return
	}
	if cfg.MetricsAddr == "" {
		logrus.Warn("serve requested but metrics_addr is empty; nothing to listen on")
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(inst.Registry, promhttp.HandlerOpts{}))
	logrus.WithField("addr", cfg.MetricsAddr).Info("serving metrics")
	if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
		logrus.WithError(err).Fatal("metrics server")
	}
}
