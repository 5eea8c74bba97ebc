// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics holds the Prometheus collectors shared by strobe components.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	PacketsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strobe_packets_sent_total",
			Help: "Test packets sent successfully.",
		},
	)
	SendErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strobe_send_errors_total",
			Help: "Test packet sends that failed.",
		},
	)
	PacketsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strobe_packets_received_total",
			Help: "Packets received, by kind (udp, frame, test_frame).",
		},
		[]string{"kind"},
	)
	ReceiveErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strobe_receive_errors_total",
			Help: "Hard receive errors.",
		},
	)
	ConnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strobe_connect_attempts_total",
			Help: "Association attempts requested from the network stack.",
		},
	)
	ConnectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strobe_connection_state",
			Help: "Connection state: 0 disconnected, 1 connecting, 2 connected, 3 failed.",
		},
	)
	Stations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strobe_stations",
			Help: "Stations tracked by the access-point registry.",
		},
	)
	Sessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strobe_sessions_total",
			Help: "Test sessions started, by role.",
		},
		[]string{"role"},
	)
)

func init() {
	prometheus.MustRegister(PacketsSent, SendErrors, PacketsReceived, ReceiveErrors,
		ConnectAttempts, ConnectionState, Stations, Sessions)
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
