// Copyright (C) 2024 XELIS
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"leechban/policy"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	detected   prometheus.Counter
	bans       prometheus.Counter
	recovered  prometheus.Counter
	ipBlocks   prometheus.Counter
	messages   prometheus.Counter
	apiBlocked prometheus.Counter

	users *prometheus.GaugeVec
}

func NewMetrics(plugins func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	makeCounter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Name: name,
			Help: help,
		})
		reg.MustRegister(c)
		return c
	}

	m := &Metrics{
		registry:   reg,
		handler:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		detected:   makeCounter("leechban_detected_total", "Leechers detected"),
		bans:       makeCounter("leechban_bans_total", "Bans sent to the client"),
		recovered:  makeCounter("leechban_recovered_total", "Detected leechers that now share enough"),
		ipBlocks:   makeCounter("leechban_ip_blocks_total", "IP addresses added to the block list"),
		messages:   makeCounter("leechban_messages_total", "Private message lines sent to banned users"),
		apiBlocked: makeCounter("leechban_api_rate_limited_total", "API requests refused by the rate limiter"),
		users: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "leechban_users",
			Help: "Known users by probe state",
		}, []string{"state"}),
	}
	reg.MustRegister(m.users)

	if plugins != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "leechban_plugins_connected",
			Help: "Client plugins connected to the bridge",
		}, func() float64 {
			return float64(plugins())
		}))
	}

	return m
}

// Handler refreshes the per-state gauges before each scrape.
func (m *Metrics) Handler(engine *policy.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.users.Reset()
		for state, n := range engine.Counts() {
			m.users.WithLabelValues(state.String()).Set(float64(n))
		}
		m.handler.ServeHTTP(w, r)
	})
}
