// Copyright (C) 2015  Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package monitor provides an embedded HTTP server to expose
// metrics, pprof/expvar debug pages, dynamic glog verbosity control,
// and any prometheus.Collector a caller registers (e.g. the
// hashtable package's Collector) for monitoring a running process.
package monitor

import (
	_ "expvar" // Go documentation recommended usage
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // Go documentation recommended usage

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cachegrand-io/lockfreekv/monitor/internal/loglevel"
)

// Server represents a monitoring server
type Server interface {
	Run()
}

// server contains information for the monitoring server
type server struct {
	// Server name e.g. host[:port]
	serverName string
	registry   *prometheus.Registry
	mux        *http.ServeMux
}

// NewMonitorServer creates a new monitoring server listening on
// serverName, exposing /debug (pprof/expvar), /debug/loglevel
// (dynamic glog verbosity), and /metrics for the given collectors.
func NewMonitorServer(serverName string, collectors ...prometheus.Collector) Server {
	reg := prometheus.NewRegistry()
	for _, c := range collectors {
		reg.MustRegister(c)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug", debugHandler)
	mux.Handle("/debug/loglevel", loglevel.Handler())
	mux.Handle("/debug/vars", http.DefaultServeMux)
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &server{
		serverName: serverName,
		registry:   reg,
		mux:        mux,
	}
}

func debugHandler(w http.ResponseWriter, r *http.Request) {
	indexTmpl := `<html>
	<head>
	<title>/debug</title>
	</head>
	<body>
	<p>/debug</p>
	<div><a href="/debug/vars">vars</a></div>
	<div><a href="/debug/pprof">pprof</a></div>
	<div><a href="/debug/loglevel">loglevel</a></div>
	<div><a href="/metrics">metrics</a></div>
	</body>
	</html>
	`
	fmt.Fprintf(w, indexTmpl)
}

// Run sets up the HTTP server and any handlers
func (s *server) Run() {
	err := http.ListenAndServe(s.serverName, s.mux)
	if err != nil {
		log.Printf("Could not start monitor server: %s", err)
	}
}
