// Package config loads the settings of the cursor monitor from a TOML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/thlstsul/ime-cursor/cursor"
)

// Default settings.
const (
	DefaultDelay      = 150 * time.Millisecond
	DefaultIMETimeout = 500 * time.Millisecond
	DefaultInterval   = time.Second
	DefaultLogLevel   = "info"
)

// Duration is a time.Duration that decodes from strings such as "150ms".
type Duration time.Duration

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements the encoding.TextMarshaler interface.
func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

// Scheme names the cursor file for each shape.
type Scheme struct {
	Arrow string `toml:"arrow"`
	IBeam string `toml:"ibeam"`
	Hand  string `toml:"hand"`
}

// Cursor converts s to a [cursor.Scheme].
func (s Scheme) Cursor() cursor.Scheme {
	return cursor.Scheme{cursor.Arrow: s.Arrow, cursor.IBeam: s.IBeam, cursor.Hand: s.Hand}
}

// Config is the complete configuration.
type Config struct {
	// Delay is the settle delay applied to change notifications.
	Delay Duration `toml:"delay"`

	// Interval is the notification period on platforms without event hooks.
	Interval Duration `toml:"interval"`

	IME struct {
		// Timeout bounds each query of the input method.
		Timeout Duration `toml:"timeout"`

		// Command and NativeOutput configure the status command used where
		// the platform has no native input method interface.
		Command      []string `toml:"command"`
		NativeOutput string   `toml:"native_output"`
	} `toml:"ime"`

	Cursor struct {
		Default Scheme `toml:"default"`
		Native  Scheme `toml:"native"`
	} `toml:"cursor"`

	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

// Default returns the default configuration.
func Default() *Config {
	c := &Config{
		Delay:    Duration(DefaultDelay),
		Interval: Duration(DefaultInterval),
	}
	c.IME.Timeout = Duration(DefaultIMETimeout)
	c.IME.Command = []string{"fcitx5-remote"}
	c.IME.NativeOutput = "2"
	c.Cursor.Default = Scheme{
		Arrow: `C:\Windows\Cursors\aero_arrow.cur`,
		IBeam: `C:\Windows\Cursors\beam_i.cur`,
		Hand:  `C:\Windows\Cursors\aero_link.cur`,
	}
	c.Cursor.Native = Scheme{
		Arrow: `assets\arrow_chi.cur`,
		IBeam: `assets\ibeam_chi.cur`,
		Hand:  `assets\link_chi.cur`,
	}
	c.Log.Level = DefaultLogLevel
	return c
}

// Load reads the configuration file at path from fsys over the defaults.
// A missing file is not an error when optional is true.
func Load(fsys afero.Fs, path string, optional bool) (*Config, error) {
	c := Default()
	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) && optional {
		return c, nil
	} else if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if keys := md.Undecoded(); len(keys) != 0 {
		return nil, fmt.Errorf("config: %s: unknown key %q", path, keys[0].String())
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Validate reports an error if c is not usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Delay < 0 {
		errs = append(errs, fmt.Errorf("negative delay %v", time.Duration(c.Delay)))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %v", time.Duration(c.Interval)))
	}
	if c.IME.Timeout < 0 {
		errs = append(errs, fmt.Errorf("negative ime timeout %v", time.Duration(c.IME.Timeout)))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	return errors.Join(errs...)
}

// Level returns the configured log level.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
