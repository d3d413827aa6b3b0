// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package metrics

import (
	"net/http"
	"time"

	"github.com/ledgerwatch/log/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Enabled is toggled by the --metrics flag.
var Enabled = false

const PrometheusPath = "/debug/metrics/prometheus"

// Handler serves the default set in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(defaultSet.Registry(), promhttp.HandlerOpts{})
}

// Setup starts a dedicated metrics server on address and returns it so the
// caller can shut it down.
func Setup(address string, logger log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(PrometheusPath, Handler())

	srv := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("Starting metrics server", "addr", "http://"+address+PrometheusPath)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failure in running metrics server", "err", err)
		}
	}()
	return srv
}
