package cmd

import (
	"fmt"
	"time"

	"github.com/thlstsul/ime-cursor/config"
	"github.com/urfave/cli"
)

const defaultConfigPath = "ime-cursor.toml"

var (
	configPath string
	settle     time.Duration
	logLevel   string
	keepCursor bool
)

var commonFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "config, f",
		Usage:       "read settings from this TOML file (optional unless set explicitly)",
		Value:       defaultConfigPath,
		EnvVar:      "IME_CURSOR_CONFIG",
		Destination: &configPath,
	},
	cli.DurationFlag{
		Name:        "delay, d",
		Usage:       "wait this long after the last keyboard or focus event before querying the input method",
		Value:       config.DefaultDelay,
		EnvVar:      "IME_CURSOR_DELAY",
		Destination: &settle,
	},
	cli.StringFlag{
		Name:        "log-level",
		Usage:       "log verbosity (trace, debug, info, warn, error)",
		Value:       config.DefaultLogLevel,
		EnvVar:      "IME_CURSOR_LOG_LEVEL",
		Destination: &logLevel,
	},
}

var runFlags = append([]cli.Flag{
	cli.BoolFlag{
		Name:        "keep-cursor, k",
		Usage:       "leave the last cursor scheme installed on exit",
		EnvVar:      "IME_CURSOR_KEEP",
		Destination: &keepCursor,
	},
}, commonFlags...)

// loadConfig reads the configuration file and applies the flags that were
// set explicitly, on the command line or through the environment.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	c, err := config.Load(fsys, configPath, !ctx.IsSet("config"))
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("delay") {
		c.Delay = config.Duration(settle)
	}
	if ctx.IsSet("log-level") {
		c.Log.Level = logLevel
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, nil
}
