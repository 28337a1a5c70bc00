package flagengine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/99souls/flagengine/internal/api"
	"github.com/99souls/flagengine/internal/dto"
	"github.com/99souls/flagengine/internal/evaluator"
	"github.com/99souls/flagengine/internal/localhost"
	"github.com/99souls/flagengine/internal/logging"
	"github.com/99souls/flagengine/internal/push"
	"github.com/99souls/flagengine/internal/recorder"
	"github.com/99souls/flagengine/internal/registry"
	"github.com/99souls/flagengine/internal/storage"
	"github.com/99souls/flagengine/internal/streaming"
	"github.com/99souls/flagengine/internal/synchronizer"
	"github.com/99souls/flagengine/internal/telemetry"
	"go.uber.org/multierr"
)

const (
	defaultSDKURL       = "https://sdk.split.example.com"
	defaultEventsURL    = "https://events.split.example.com"
	defaultAuthURL      = "https://auth.split.example.com"
	defaultStreamingURL = "https://streaming.split.example.com"
	defaultTelemetryURL = "https://telemetry.split.example.com"
)

func pick(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

// validateConfig collects every configuration problem at once, the same way
// the control plane's client-side validation reports every violation in a
// single error rather than stopping at the first one.
func validateConfig(cfg Config) error {
	var err error
	if cfg.APIKey == "" && cfg.OperationMode != ModeLocalhost {
		err = multierr.Append(err, fmt.Errorf("flagengine: APIKey is required outside localhost mode"))
	}
	if cfg.OperationMode == ModeLocalhost && cfg.LocalhostFilePath == "" {
		err = multierr.Append(err, fmt.Errorf("flagengine: LocalhostFilePath is required in localhost mode"))
	}
	if cfg.ImpressionsQueueSize < 0 {
		err = multierr.Append(err, fmt.Errorf("flagengine: ImpressionsQueueSize must not be negative"))
	}
	if cfg.EventsQueueSize < 0 {
		err = multierr.Append(err, fmt.Errorf("flagengine: EventsQueueSize must not be negative"))
	}
	return err
}

// Factory builds a ready-to-start Client/Manager pair from cfg, wiring
// storage, evaluation, synchronization, push, recorder, and telemetry
// subsystems the way the host application's single entry point is expected
// to. The returned Manager is already started: Start runs the initial sync
// before Factory returns, so the Client is ready on return, and a failed
// initial sync is returned as an error instead.
func Factory(cfg Config) (*Client, *Manager, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, nil, err
	}
	cfg = cfg.normalize()

	isRedundant := registry.Register(cfg.APIKey)
	logger := logging.New(slog.Default())
	if isRedundant {
		logger.WarnCtx(context.Background(), "duplicate SDK key factory instance", "api_key_suffix", suffix(cfg.APIKey))
	}

	flagStore := storage.NewFlagStore()
	segmentStore := storage.NewSegmentStore()

	m := &Manager{
		cfg:          cfg,
		apiKey:       cfg.APIKey,
		flagStore:    flagStore,
		segmentStore: segmentStore,
		evaluator:    evaluator.New(flagStore, segmentStore),
		logger:       logger,
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		registry.Unregister(cfg.APIKey)
		return nil, nil, err
	}
	m.telemetry = telemetry.New(provider, nowMillis())

	if cfg.OperationMode == ModeLocalhost {
		src, err := localhost.NewSource(cfg.LocalhostFilePath)
		if err != nil {
			registry.Unregister(cfg.APIKey)
			return nil, nil, fmt.Errorf("flagengine: loading localhost definitions: %w", err)
		}
		m.localhostSource = src
		m.impressions = recorder.NewImpressionRecorder(recorder.Mode(cfg.ImpressionsMode), cfg.ImpressionsQueueSize)
		m.events = recorder.NewEventRecorder(cfg.EventsQueueSize)
		client := &Client{manager: m}
		if err := m.Start(context.Background()); err != nil {
			registry.Unregister(cfg.APIKey)
			return nil, nil, err
		}
		return client, m, nil
	}

	meta := api.Metadata{SDKVersion: "flagengine-go-1.0.0", MachineName: cfg.MachineName}
	if cfg.IPAddressesEnabled {
		meta.MachineIP = cfg.MachineIP
	}
	sdkClient := api.NewClient(api.ClientConfig{
		BaseURL: pick(cfg.URLs.SDKURL, defaultSDKURL), APIKey: cfg.APIKey,
		ConnectTimeout: cfg.ConnectTimeout, ReadTimeout: cfg.ReadTimeout, Metadata: meta,
	})
	authClient := api.NewClient(api.ClientConfig{
		BaseURL: pick(cfg.URLs.AuthURL, defaultAuthURL), APIKey: cfg.APIKey,
		ConnectTimeout: cfg.ConnectTimeout, ReadTimeout: cfg.ReadTimeout, Metadata: meta,
	})
	eventsClient := api.NewClient(api.ClientConfig{
		BaseURL: pick(cfg.URLs.EventsURL, defaultEventsURL), APIKey: cfg.APIKey,
		ConnectTimeout: cfg.ConnectTimeout, ReadTimeout: cfg.ReadTimeout, Metadata: meta,
	})
	telemetryClient := api.NewClient(api.ClientConfig{
		BaseURL: pick(cfg.URLs.TelemetryURL, defaultTelemetryURL), APIKey: cfg.APIKey,
		ConnectTimeout: cfg.ConnectTimeout, ReadTimeout: cfg.ReadTimeout, Metadata: meta,
	})
	m.synchronizer = synchronizer.New(sdkClient, sdkClient, flagStore, segmentStore, synchronizer.Config{}, m.telemetry.Counters())

	m.impressions = recorder.NewImpressionRecorder(recorder.Mode(cfg.ImpressionsMode), cfg.ImpressionsQueueSize)
	m.events = recorder.NewEventRecorder(cfg.EventsQueueSize)

	if cfg.ImpressionsMode != ImpressionsNone {
		m.impressionFlusher = recorder.NewFlusher[dto.Impression](
			cfg.ImpressionsRefreshRate, cfg.ImpressionsBulkSize, "impressions",
			m.impressions.DrainImpressions, m.impressions.RequeueImpressions,
			func(ctx context.Context, batch []dto.Impression) error { return eventsClient.SubmitImpressions(ctx, batch) },
			m.telemetry.Counters(),
		)
	}
	m.countFlusher = recorder.NewFlusher[dto.ImpressionCount](
		cfg.ImpressionsRefreshRate, 0, "impressionCounts",
		func(int) []dto.ImpressionCount { return m.impressions.DrainCounts() }, nil,
		func(ctx context.Context, batch []dto.ImpressionCount) error { return eventsClient.SubmitImpressionCounts(ctx, batch) },
		m.telemetry.Counters(),
	)
	m.eventFlusher = recorder.NewFlusher[dto.Event](
		cfg.EventsPushRate, cfg.EventsBulkSize, "events",
		m.events.Drain, m.events.Requeue,
		func(ctx context.Context, batch []dto.Event) error { return eventsClient.SubmitEvents(ctx, batch) },
		m.telemetry.Counters(),
	)

	if cfg.MetricsEnabled {
		m.statsTask = telemetry.NewStatsTask(m.telemetry, cfg.StatsShipInterval,
			func(ctx context.Context, payload telemetry.StatsPayload) error {
				return telemetryClient.SubmitTelemetryUsage(ctx, payload)
			}, nowMillis)
	}

	m.flagFetcher = synchronizer.NewPeriodicFetcher(cfg.FeaturesRefreshRate,
		func(ctx context.Context) error { return m.synchronizer.SynchronizeFlags(ctx, nil) },
		func(err error) { m.logger.ErrorCtx(context.Background(), "periodic flag sync failed", "error", err) })
	m.segmentFetcher = synchronizer.NewPeriodicFetcher(cfg.SegmentsRefreshRate,
		m.syncAllSegments,
		func(err error) { m.logger.ErrorCtx(context.Background(), "periodic segment sync failed", "error", err) })

	if cfg.StreamingEnabled {
		m.flagQueue = push.NewFlagQueue(1000)
		m.segmentQueue = push.NewSegmentQueue(1000)
		m.pushManager = push.NewManager(authClient, streaming.NewSSEClient(pick(cfg.URLs.StreamingURL, defaultStreamingURL)),
			flagStore, m.flagQueue, m.segmentQueue, 8, m.telemetry.Counters())
	}

	client := &Client{manager: m}
	if err := m.Start(context.Background()); err != nil {
		registry.Unregister(cfg.APIKey)
		return nil, nil, err
	}

	if m.statsTask != nil {
		snapshot := buildConfigSnapshot(cfg)
		go func() {
			_ = telemetry.ShipSnapshot(context.Background(), snapshot, func(ctx context.Context, s telemetry.ConfigSnapshot) error {
				return telemetryClient.SubmitTelemetryConfig(ctx, s)
			})
		}()
	}

	return client, m, nil
}

func buildProvider(cfg Config) (telemetry.Provider, error) {
	if !cfg.MetricsEnabled {
		return telemetry.NewNoopProvider(), nil
	}
	switch cfg.MetricsBackend {
	case MetricsProm:
		return telemetry.NewPrometheusProvider(nil), nil
	case MetricsOtel:
		return telemetry.NewOTelProvider(nil), nil
	default:
		return telemetry.NewNoopProvider(), nil
	}
}

func buildConfigSnapshot(cfg Config) telemetry.ConfigSnapshot {
	active, redundant := registry.Counts()
	return telemetry.ConfigSnapshot{
		OperationMode:       string(cfg.OperationMode),
		StorageType:         "memory",
		FlagsRefreshRate:    int(cfg.FeaturesRefreshRate.Seconds()),
		SegmentsRefreshRate: int(cfg.SegmentsRefreshRate.Seconds()),
		ImpressionsMode:     string(cfg.ImpressionsMode),
		URLOverridden:       cfg.urlOverridden(),
		StreamingEnabled:    cfg.StreamingEnabled,
		ImpressionListener:  false,
		HTTPSProxyDetected:  httpsProxyDetected(),
		ActiveFactories:     active,
		RedundantFactories:  redundant,
		FlagsQueueSize:      cfg.ImpressionsQueueSize,
		EventsQueueSize:     cfg.EventsQueueSize,
	}
}

// httpsProxyDetected reports whether an HTTPS_PROXY/https_proxy environment
// variable would apply to a request to the default (https) SDK URL, the same
// detection net/http itself uses for ProxyFromEnvironment. HTTP_PROXY alone
// does not count, since it is not consulted for https requests.
func httpsProxyDetected() bool {
	req, err := http.NewRequest(http.MethodGet, defaultSDKURL, nil)
	if err != nil {
		return false
	}
	proxyURL, err := http.ProxyFromEnvironment(req)
	return err == nil && proxyURL != nil
}

func suffix(apiKey string) string {
	if len(apiKey) <= 4 {
		return apiKey
	}
	return apiKey[len(apiKey)-4:]
}
