package flagengine

import "time"

// OperationMode selects where flag/segment definitions come from.
type OperationMode string

const (
	ModeInMemory      OperationMode = "in-memory"
	ModeRedisConsumer OperationMode = "redis-consumer"
	ModePluggable     OperationMode = "pluggable"
	ModeLocalhost     OperationMode = "localhost"
)

// ImpressionsMode selects the recorder's dedupe behavior.
type ImpressionsMode string

const (
	ImpressionsOptimized ImpressionsMode = "OPTIMIZED"
	ImpressionsDebug     ImpressionsMode = "DEBUG"
	ImpressionsNone      ImpressionsMode = "NONE"
)

// MetricsBackend selects the telemetry export backend.
type MetricsBackend string

const (
	MetricsNoop MetricsBackend = "noop"
	MetricsProm MetricsBackend = "prom"
	MetricsOtel MetricsBackend = "otel"
)

// URLOverrides lets callers point individual endpoints at non-default hosts,
// e.g. for testing against a local fixture server.
type URLOverrides struct {
	SDKURL       string
	EventsURL    string
	AuthURL      string
	StreamingURL string
	TelemetryURL string
}

// Config is the public configuration surface for Factory, narrowing and
// normalizing the underlying subsystem configs the way the teacher's
// engine.Config does for its pipeline/resources/rate-limit configs.
type Config struct {
	APIKey        string
	OperationMode OperationMode

	// LocalhostFilePath is required when OperationMode is ModeLocalhost.
	LocalhostFilePath string

	StreamingEnabled bool

	FeaturesRefreshRate time.Duration
	SegmentsRefreshRate time.Duration

	ImpressionsMode        ImpressionsMode
	ImpressionsRefreshRate time.Duration
	ImpressionsBulkSize    int
	ImpressionsQueueSize   int

	EventsPushRate  time.Duration
	EventsBulkSize  int
	EventsQueueSize int

	LabelsEnabled      bool
	IPAddressesEnabled bool

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	MachineName string
	MachineIP   string

	URLs URLOverrides

	MetricsEnabled bool
	MetricsBackend MetricsBackend

	StatsShipInterval time.Duration
}

// Defaults returns a Config with every documented default applied, ready to
// have APIKey and any overrides layered on top.
func Defaults() Config {
	return Config{
		OperationMode:          ModeInMemory,
		StreamingEnabled:       true,
		FeaturesRefreshRate:    30 * time.Second,
		SegmentsRefreshRate:    30 * time.Second,
		ImpressionsMode:        ImpressionsOptimized,
		ImpressionsRefreshRate: 300 * time.Second,
		ImpressionsBulkSize:    5000,
		ImpressionsQueueSize:   10000,
		EventsPushRate:         10 * time.Second,
		EventsBulkSize:         5000,
		EventsQueueSize:        10000,
		LabelsEnabled:          true,
		IPAddressesEnabled:     true,
		ConnectTimeout:         1500 * time.Millisecond,
		ReadTimeout:            5000 * time.Millisecond,
		MetricsEnabled:         false,
		MetricsBackend:         MetricsNoop,
		StatsShipInterval:      60 * time.Second,
	}
}

// normalize applies impressions-refresh-rate flooring and pluggable-mode
// forcing per §6: OPTIMIZED/NONE floor to 60s, DEBUG floors to 1s, and
// pluggable mode forces DEBUG regardless of the caller's setting.
func (c Config) normalize() Config {
	if c.OperationMode == ModePluggable {
		c.ImpressionsMode = ImpressionsDebug
	}
	switch c.ImpressionsMode {
	case ImpressionsDebug:
		if c.ImpressionsRefreshRate < time.Second {
			c.ImpressionsRefreshRate = time.Second
		}
	default:
		if c.ImpressionsRefreshRate < 60*time.Second {
			c.ImpressionsRefreshRate = 60 * time.Second
		}
	}
	if c.OperationMode == ModeLocalhost {
		c.StreamingEnabled = false
	}
	return c
}

func (c Config) urlOverridden() bool {
	return c.URLs.SDKURL != "" || c.URLs.EventsURL != "" || c.URLs.AuthURL != "" ||
		c.URLs.StreamingURL != "" || c.URLs.TelemetryURL != ""
}
