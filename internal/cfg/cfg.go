package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/playdrop/internal/archive"
	"github.com/keithlinneman/playdrop/internal/log"
)

type App struct {
	LogJSON           bool
	LogLevel          string
	HTTPPort          int
	AdminPort         int
	EnablePprof       bool
	EnablePyroscope   bool
	EnableTracing     bool
	PyroServer        string
	PyroTenantID      string
	OTLPEndpoint      string
	TraceSample       float64
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int
	TrustedHops       int

	UploadRoot        string
	PublicPrefix      string
	EntryDocument     string
	MaxUploadBytes    int64
	MaxEntryBytes     int64
	MaxExtractBytes   int64
	MaxEntries        int
	Retention         time.Duration
	SweepInterval     time.Duration
	UnsafeEntryPolicy string
	RecentLimit       int
	UploadRate        float64
	UploadBurst       int
	MirrorS3Bucket    string
	MirrorS3Prefix    string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "trusted reverse proxies in front of the server (0..8); 0 ignores X-Forwarded-For")

	fs.StringVar(&c.UploadRoot, "upload-root", "/var/lib/playdrop/uploads", "directory holding one subdirectory per upload")
	fs.StringVar(&c.PublicPrefix, "public-prefix", "/play", "public path prefix extracted uploads are served under")
	fs.StringVar(&c.EntryDocument, "entry-document", "index.html", "file name searched for (case-insensitive) after extraction")
	fs.Int64Var(&c.MaxUploadBytes, "max-upload-bytes", 64<<20, "maximum archive size accepted at intake")
	fs.Int64Var(&c.MaxEntryBytes, "max-entry-bytes", 64<<20, "maximum decompressed size of a single entry (0 = unlimited)")
	fs.Int64Var(&c.MaxExtractBytes, "max-extract-bytes", 256<<20, "maximum decompressed size of a whole archive (0 = unlimited)")
	fs.IntVar(&c.MaxEntries, "max-entries", 10000, "maximum number of entries in an archive (0 = unlimited)")
	fs.DurationVar(&c.Retention, "retention", time.Hour, "age after which uploads are deleted")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", 5*time.Minute, "how often expired uploads are swept")
	fs.StringVar(&c.UnsafeEntryPolicy, "unsafe-entry-policy", "drop", "drop|reject: skip unsafe archive entries or fail the upload")
	fs.IntVar(&c.RecentLimit, "recent-limit", 50, "number of uploads returned by /recent")
	fs.Float64Var(&c.UploadRate, "upload-rate", 1, "uploads per second allowed per client ip")
	fs.IntVar(&c.UploadBurst, "upload-burst", 5, "upload burst allowed per client ip")
	fs.StringVar(&c.MirrorS3Bucket, "mirror-s3-bucket", "", "s3 bucket to mirror accepted archives to (empty disables)")
	fs.StringVar(&c.MirrorS3Prefix, "mirror-s3-prefix", "playdrop/archives", "s3 key prefix for mirrored archives")
}

// EnvKey maps flag "max-upload-bytes" to PREFIX_MAX_UPLOAD_BYTES.
func EnvKey(prefix, flagName string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(flagName), "-", "_")
}

// FillFromEnv applies environment variables to every flag not given on the
// command line, so precedence is cli > env > default. Unparseable values keep
// the previous value and are reported through logf.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	onCLI := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { onCLI[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := EnvKey(prefix, f.Name)
		val, ok := os.LookupEnv(key)
		switch {
		case !ok:
		case onCLI[f.Name]:
			logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, val)
		default:
			prev := f.Value.String()
			if err := f.Value.Set(val); err != nil {
				_ = f.Value.Set(prev)
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, val, err)
			}
		}
	})
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

// Validate reports every invalid field at once, joined.
func Validate(c App) error {
	var errs []error
	fail := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if !validPort(c.HTTPPort) {
		fail("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort)
	}
	if !validPort(c.AdminPort) {
		fail("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort)
	}
	if c.AdminPort == c.HTTPPort {
		fail("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		fail("invalid LOG_LEVEL: %w", err)
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			fail("invalid STACKTRACE_LEVEL: %w", err)
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		fail("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks)
	}
	if c.TrustedHops < 0 || c.TrustedHops > 8 {
		fail("TRUSTED_HOPS must be 0..8 (got %d)", c.TrustedHops)
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		fail("invalid TRACE_SAMPLE %g (must be 0..1)", c.TraceSample)
	}
	if c.EnableTracing {
		if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			fail("OTLP_ENDPOINT must be host:port when ENABLE_TRACING=true (got %q)", c.OTLPEndpoint)
		}
	}
	if c.EnablePyroscope {
		if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			fail("PYRO_SERVER must be a URL when ENABLE_PYROSCOPE=true (got %q)", c.PyroServer)
		}
		if c.PyroTenantID == "" {
			fail("PYRO_TENANT required when ENABLE_PYROSCOPE=true")
		}
	}

	if strings.TrimSpace(c.UploadRoot) == "" {
		fail("UPLOAD_ROOT is required")
	}
	if p := strings.Trim(c.PublicPrefix, "/"); p == "" || strings.ContainsAny(p, "?#\\") {
		fail("PUBLIC_PREFIX must be a non-root path (got %q)", c.PublicPrefix)
	}
	switch doc := c.EntryDocument; {
	case doc == "", doc == ".", doc == "..", strings.ContainsAny(doc, "/\\"):
		fail("ENTRY_DOCUMENT must be a plain file name (got %q)", doc)
	}
	if c.MaxUploadBytes <= 0 {
		fail("MAX_UPLOAD_BYTES must be > 0 (got %d)", c.MaxUploadBytes)
	}
	for name, v := range map[string]int64{
		"MAX_ENTRY_BYTES":   c.MaxEntryBytes,
		"MAX_EXTRACT_BYTES": c.MaxExtractBytes,
		"MAX_ENTRIES":       int64(c.MaxEntries),
	} {
		if v < 0 {
			fail("%s must be >= 0, 0 meaning unlimited (got %d)", name, v)
		}
	}
	if c.Retention < time.Minute {
		fail("RETENTION must be at least 1m (got %s)", c.Retention)
	}
	if c.SweepInterval < time.Second {
		fail("SWEEP_INTERVAL must be at least 1s (got %s)", c.SweepInterval)
	}
	if _, err := archive.ParseUnsafePolicy(c.UnsafeEntryPolicy); err != nil {
		fail("invalid UNSAFE_ENTRY_POLICY: %w", err)
	}
	if c.RecentLimit < 1 || c.RecentLimit > 1000 {
		fail("RECENT_LIMIT must be 1..1000 (got %d)", c.RecentLimit)
	}
	if c.UploadRate <= 0 {
		fail("UPLOAD_RATE must be > 0 (got %g)", c.UploadRate)
	}
	if c.UploadBurst < 1 {
		fail("UPLOAD_BURST must be >= 1 (got %d)", c.UploadBurst)
	}
	if c.MirrorS3Bucket != "" && strings.Trim(c.MirrorS3Prefix, "/") == "" {
		fail("MIRROR_S3_PREFIX is required when MIRROR_S3_BUCKET is set")
	}

	return errors.Join(errs...)
}
