// Package pipeline wires the ingestion engine into the concrete business
// flows: tickets, sales, collections, attendance, roster, subscribers and the
// client dimension. Each pipeline is a thin configuration over the shared
// incremental engine; a registry runs them in dependency order.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"telcoetl/config"
)

// RunReport summarizes one pipeline execution.
type RunReport struct {
	RunID         string
	Pipeline      string
	StartedAt     time.Time
	FinishedAt    time.Time
	FilesSelected int
	FilesSkipped  int
	RowsRead      int
	RowsKept      int
	Persisted     bool
	Watermark     time.Time
	Message       string
}

// Pipeline is one runnable business flow.
type Pipeline interface {
	Name() string
	Run(ctx context.Context, cfg *config.Config) (*RunReport, error)
}

// Registry holds pipelines in dependency order: the attendance consolidation
// reads the gold snapshots the channel pipelines produce, so those run first.
type Registry struct {
	pipelines []Pipeline
}

// NewRegistry builds the production registry.
func NewRegistry() *Registry {
	return &Registry{pipelines: []Pipeline{
		NewTickets(),
		NewSales(),
		NewCollections(),
		NewRoster(),
		NewSubscribers(),
		NewDimClients(),
		NewAttendance(),
	}}
}

// Names lists the registered pipelines in run order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.pipelines))
	for i, p := range r.pipelines {
		names[i] = p.Name()
	}
	return names
}

// Get finds a pipeline by name.
func (r *Registry) Get(name string) (Pipeline, error) {
	for _, p := range r.pipelines {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown pipeline %q", name)
}

// RunAll executes every pipeline in order. One pipeline failing is logged and
// its siblings still run; the returned reports cover the pipelines that
// produced one.
func (r *Registry) RunAll(ctx context.Context, cfg *config.Config) []*RunReport {
	var reports []*RunReport
	for _, p := range r.pipelines {
		log.Printf("INFO: ==== running %s ====", p.Name())
		report, err := p.Run(ctx, cfg)
		if err != nil {
			log.Printf("ERROR: pipeline %s failed: %v", p.Name(), err)
		}
		if report != nil {
			reports = append(reports, report)
		}
	}
	return reports
}
