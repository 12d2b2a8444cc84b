package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/playdrop/internal/health"
	"github.com/keithlinneman/playdrop/internal/httpmw"
	"github.com/keithlinneman/playdrop/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func() // called for each recovered panic, e.g. to increment a counter
	MetricsMW    func(http.Handler) http.Handler
	Health       health.Probe
	Readiness    health.Probe
	ClientIPOpts httpmw.ClientIPOptions

	// APIRoutes registers JSON endpoints on the router.
	APIRoutes func(chi.Router)

	// Content serves everything under ContentPrefix (e.g. "/play").
	ContentPrefix string
	Content       http.Handler

	// SiteHandler answers unmatched routes and methods.
	SiteHandler http.Handler

	// ReadTimeout and WriteTimeout override the defaults; uploads need
	// more than a static site does.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}
