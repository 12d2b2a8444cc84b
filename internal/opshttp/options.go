package opshttp

import (
	"context"
	"net/http"

	"github.com/keithlinneman/playdrop/internal/health"
	"github.com/keithlinneman/playdrop/internal/uploads"
)

// Sweeper runs one retention sweep on demand.
type Sweeper interface {
	Sweep(ctx context.Context) uploads.SweepResult
}

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// Sweeper enables POST /-/sweep.
	Sweeper      Sweeper
	UseRecoverMW bool
	OnPanic      func()
}
