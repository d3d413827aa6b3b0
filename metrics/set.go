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
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var defaultSet = NewSet()

// Set is a group of metrics backed by one prometheus registry. Metrics are
// addressed by their full name including labels, e.g. foo{bar="baz"}.
type Set struct {
	mu       sync.Mutex
	registry *prometheus.Registry
	metrics  map[string]prometheus.Collector
}

// NewSet creates a set that also exports the go runtime and process metrics.
func NewSet() *Set {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Set{registry: registry, metrics: make(map[string]prometheus.Collector)}
}

func (s *Set) Registry() *prometheus.Registry { return s.registry }

func (s *Set) NewCounter(name string) (prometheus.Counter, error) {
	return create(s, name, func(base string, labels prometheus.Labels) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: base, Help: base, ConstLabels: labels})
	})
}

func (s *Set) GetOrCreateCounter(name string) (prometheus.Counter, error) {
	return getOrCreate(s, name, s.NewCounter)
}

func (s *Set) NewGauge(name string) (prometheus.Gauge, error) {
	return create(s, name, func(base string, labels prometheus.Labels) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: base, Help: base, ConstLabels: labels})
	})
}

func (s *Set) GetOrCreateGauge(name string) (prometheus.Gauge, error) {
	return getOrCreate(s, name, s.NewGauge)
}

func (s *Set) NewSummary(name string) (prometheus.Summary, error) {
	return create(s, name, func(base string, labels prometheus.Labels) prometheus.Summary {
		return prometheus.NewSummary(prometheus.SummaryOpts{
			Name:        base,
			Help:        base,
			ConstLabels: labels,
			Objectives:  map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		})
	})
}

func (s *Set) GetOrCreateSummary(name string) (prometheus.Summary, error) {
	return getOrCreate(s, name, s.NewSummary)
}

func create[T prometheus.Collector](s *Set, name string, build func(string, prometheus.Labels) T) (T, error) {
	var zero T
	base, labels, err := parseMetric(name)
	if err != nil {
		return zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.metrics[name]; ok {
		return zero, fmt.Errorf("metric %q is already registered", name)
	}
	m := build(base, labels)
	if err := s.registry.Register(m); err != nil {
		return zero, fmt.Errorf("register %q: %w", name, err)
	}
	s.metrics[name] = m
	return m, nil
}

func getOrCreate[T prometheus.Collector](s *Set, name string, newFn func(string) (T, error)) (T, error) {
	s.mu.Lock()
	existing, ok := s.metrics[name]
	s.mu.Unlock()
	if !ok {
		m, err := newFn(name)
		if err == nil {
			return m, nil
		}
		// lost a race against another caller
		s.mu.Lock()
		existing, ok = s.metrics[name]
		s.mu.Unlock()
		if !ok {
			return m, err
		}
	}
	m, ok := existing.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("metric %q is registered with type %T", name, existing)
	}
	return m, nil
}

// parseMetric splits foo{bar="baz",aaa="b"} into its name and labels.
func parseMetric(s string) (string, prometheus.Labels, error) {
	open := strings.IndexByte(s, '{')
	if open < 0 {
		if s == "" {
			return "", nil, fmt.Errorf("empty metric name")
		}
		return s, nil, nil
	}
	if open == 0 || !strings.HasSuffix(s, "}") {
		return "", nil, fmt.Errorf("malformed metric name %q", s)
	}

	name, rest := s[:open], s[open+1:len(s)-1]
	labels := prometheus.Labels{}
	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 || eq+1 >= len(rest) || rest[eq+1] != '"' {
			return "", nil, fmt.Errorf("malformed labels in %q", s)
		}
		key := strings.TrimSpace(rest[:eq])
		rest = rest[eq+2:]

		var value strings.Builder
		closed := false
		for i := 0; i < len(rest); i++ {
			switch c := rest[i]; {
			case c == '\\' && i+1 < len(rest):
				i++
				value.WriteByte(rest[i])
			case c == '"':
				rest = rest[i+1:]
				closed = true
			default:
				value.WriteByte(c)
			}
			if closed {
				break
			}
		}
		if !closed {
			return "", nil, fmt.Errorf("unterminated label value in %q", s)
		}
		labels[key] = value.String()
		rest = strings.TrimPrefix(strings.TrimSpace(rest), ",")
	}
	return name, labels, nil
}
