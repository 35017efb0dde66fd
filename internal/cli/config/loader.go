package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/leapstack-labs/lookpipe/internal/engine"
	"github.com/leapstack-labs/lookpipe/internal/monitor"
	"github.com/leapstack-labs/lookpipe/pkg/adapter"
	"github.com/leapstack-labs/lookpipe/pkg/extract"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: LOOKPIPE_INGESTION__START_DATE sets ingestion.start_date.
const EnvPrefix = "LOOKPIPE_"

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

var configNames = []string{"lookpipe.yaml", "lookpipe.yml"}

// flagKeys maps CLI flags to the config keys they override. Flags not
// listed here are command options and never reach the config.
var flagKeys = map[string]string{
	"env":           "env",
	"log-level":     "log_level",
	"log-format":    "log_format",
	"output":        "output",
	"state":         "state_path",
	"workspace":     "workspace",
	"warehouse":     "warehouse.type",
	"credentials":   "ingestion.credentials",
	"start-date":    "ingestion.start_date",
	"lookback-days": "ingestion.lookback_days",
	"safety-limit":  "ingestion.safety_limit",
	"output-dir":    "sink.output_dir",
	"concurrency":   "run.concurrency",
	"fail-fast":     "run.fail_fast",
	"retries":       "run.retries",
	"retry-delay":   "run.retry_delay",
	"schedule":      "run.schedule",
}

func defaults() map[string]any {
	return map[string]any{
		"env":                                  DefaultEnv,
		"log_level":                            DefaultLogLevel,
		"log_format":                           DefaultLogFormat,
		"output":                               DefaultOutput,
		"state_path":                           DefaultStateFile,
		"warehouse.type":                       DefaultWarehouse,
		"warehouse.dataset":                    DefaultDataset,
		"ingestion.lookback_days":              DefaultLookbackDays,
		"ingestion.safety_limit":               extract.DefaultSafetyLimit,
		"sink.postgres_schema":                 DefaultPGSchema,
		"run.concurrency":                      engine.DefaultConcurrency,
		"run.retry_delay":                      DefaultRetryDelay.String(),
		"monitoring.memory_alert_threshold_mb": monitor.DefaultThresholdMB,
	}
}

// FindConfigFile returns explicit when set, otherwise the first
// lookpipe.yaml found searching upward from dir.
func FindConfigFile(explicit, dir string) string {
	if explicit != "" {
		return explicit
	}
	for i := 0; i < maxUpwardSearchLevels; i++ {
		for _, name := range configNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// Load loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	// 2. Find and load config file
	cfgFile = FindConfigFile(cfgFile, cwd)
	projectRoot := cwd
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
		if abs, err := filepath.Abs(cfgFile); err == nil {
			cfgFile = abs
			projectRoot = filepath.Dir(abs)
		}
	}

	// 3. Load environment variables
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !f.Changed || !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ConfigFile = cfgFile
	cfg.ProjectRoot = projectRoot

	// 6. Expand ${VAR} references and anchor relative paths at the project root
	cfg.Ingestion.Credentials = resolvePath(adapter.ExpandEnv(cfg.Ingestion.Credentials), projectRoot)
	cfg.Warehouse.Project = adapter.ExpandEnv(cfg.Warehouse.Project)
	cfg.Sink.PostgresDSN = adapter.ExpandEnv(cfg.Sink.PostgresDSN)
	cfg.StatePath = resolvePath(cfg.StatePath, projectRoot)
	cfg.Workspace = resolvePath(cfg.Workspace, projectRoot)
	cfg.Sink.OutputDir = resolvePath(cfg.Sink.OutputDir, projectRoot)
	cfg.Processing.SchemasFile = resolvePath(cfg.Processing.SchemasFile, projectRoot)

	// 7. Target schemas keep document order, so they bypass koanf
	schemas, err := LoadSchemas(cfg.ConfigFile, cfg.Processing.SchemasFile)
	if err != nil {
		return nil, err
	}
	cfg.Processing.Schemas = schemas

	return &cfg, nil
}

// envKey transforms LOOKPIPE_RUN__FAIL_FAST into run.fail_fast.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// resolvePath resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, in-memory or already absolute.
func resolvePath(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

type configKey struct{}

type loggerKey struct{}

// WithConfig stores cfg in ctx.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config stored by WithConfig.
func FromContext(ctx context.Context) (*Config, bool) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	return cfg, ok
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}
