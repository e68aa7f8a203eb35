// Package config loads the host configuration.
//
// Layers, lowest priority first:
//
//	1. Built-in defaults (Default)
//	2. TOML file, usually cutlet.toml
//	3. Environment, CUTLET_<SECTION>__<KEY>, e.g. CUTLET_LOG__LEVEL=debug
//	4. Command-line flags, applied by the caller after Load
//
// A sample file:
//
//	[paths]
//	modules = "modules"
//	bots = "bots"
//	data = "."
//
//	[log]
//	level = "info"
//	format = "json"
//
//	[console]
//	enabled = true
//
//	[watch]
//	enabled = false
//
//	[permission]
//	console = ["*"]
package config

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/cutlet/internal/config/loader"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "CUTLET_"

// ErrInvalid is matched by every validation problem.
var ErrInvalid = errors.New("invalid configuration")

// Config is the host configuration.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Log        Log        `toml:"log"`
	Console    Console    `toml:"console"`
	Watch      Watch      `toml:"watch"`
	Permission Permission `toml:"permission"`
}

// Paths locates extension archives and host data.
type Paths struct {
	Modules string `toml:"modules"`
	Bots    string `toml:"bots"`

	// Data overrides resources bundled with the host, e.g. messages.toml.
	Data string `toml:"data"`
}

// Log configures the root logger.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // json or console
}

// Console configures the built-in console sender.
type Console struct {
	Enabled bool `toml:"enabled"`
}

// Watch configures the archive watcher.
type Watch struct {
	Enabled bool `toml:"enabled"`
}

// Permission configures built-in grants.
type Permission struct {
	// Console lists the console sender's grants.
	Console []string `toml:"console"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Paths:      Paths{Modules: "modules", Bots: "bots", Data: "."},
		Log:        Log{Level: "info", Format: "json"},
		Console:    Console{Enabled: true},
		Permission: Permission{Console: []string{"*"}},
	}
}

type options struct {
	file    string
	fs      loader.FileSystem
	environ []string
	useEnv  bool
}

// Option configures Load.
type Option func(*options)

// WithFile sets the TOML file. A missing file is not an error.
func WithFile(path string) Option {
	return func(o *options) {
		o.file = path
	}
}

// WithFS reads the file from fsys instead of the OS.
func WithFS(fsys loader.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithEnviron reads overrides from environ instead of the process
// environment.
func WithEnviron(environ []string) Option {
	return func(o *options) {
		o.environ = environ
	}
}

// WithoutEnv disables the environment layer.
func WithoutEnv() Option {
	return func(o *options) {
		o.useEnv = false
	}
}

// Load merges the layers and validates the result.
func Load(opts ...Option) (*Config, error) {
	o := options{fs: loader.OSFS{}, useEnv: true}
	for _, opt := range opts {
		opt(&o)
	}

	defaults, err := toMap(Default())
	if err != nil {
		return nil, err
	}

	layers := []loader.Loader{loader.NewTOMLLoaderWithFS(o.fs, o.file)}
	if o.useEnv {
		if o.environ != nil {
			layers = append(layers, loader.NewEnvLoaderFrom(EnvPrefix, o.environ))
		} else {
			layers = append(layers, loader.NewEnvLoader(EnvPrefix))
		}
	}

	merged, err := toMap(Default())
	if err != nil {
		return nil, err
	}
	for _, l := range layers {
		layer, err := l.Load()
		if err != nil {
			return nil, err
		}
		coerce(defaults, layer)
		merged = loader.DeepMerge(merged, layer)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func toMap(c *Config) (map[string]any, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	return loader.Parse("defaults", data)
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := toml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: unknown keys:\n%s", ErrInvalid, strict.String())
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &cfg, nil
}

// coerce converts scalar layer values to the type of the default at the
// same path. Environment values arrive untyped, so "8080" for a string
// field stays a string and "a,b" for a list becomes a list.
func coerce(like, in map[string]any) {
	for k, v := range in {
		switch want := like[k].(type) {
		case map[string]any:
			if m, ok := v.(map[string]any); ok {
				coerce(want, m)
			}
		case string:
			if _, ok := v.(string); !ok {
				if _, nested := v.(map[string]any); !nested {
					in[k] = fmt.Sprint(v)
				}
			}
		case []any:
			if s, ok := v.(string); ok {
				in[k] = splitList(s)
			}
		}
	}
}

func splitList(s string) []any {
	var out []any
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate reports every problem with the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Paths.Modules == "" {
		errs = append(errs, fmt.Errorf("%w: paths.modules is empty", ErrInvalid))
	}
	if c.Paths.Bots == "" {
		errs = append(errs, fmt.Errorf("%w: paths.bots is empty", ErrInvalid))
	}
	if c.Paths.Modules != "" && c.Paths.Modules == c.Paths.Bots {
		errs = append(errs, fmt.Errorf("%w: paths.modules and paths.bots are both %q", ErrInvalid, c.Paths.Modules))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("%w: log.format %q, want json or console", ErrInvalid, c.Log.Format))
	}
	for i, grant := range c.Permission.Console {
		if strings.TrimSpace(grant) == "" {
			errs = append(errs, fmt.Errorf("%w: permission.console[%d] is empty", ErrInvalid, i))
		}
	}
	return errors.Join(errs...)
}
