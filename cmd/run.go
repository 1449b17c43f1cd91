package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/thlstsul/ime-cursor/config"
	"github.com/thlstsul/ime-cursor/cursor"
	"github.com/thlstsul/ime-cursor/hook"
	"github.com/thlstsul/ime-cursor/ime"
	"github.com/thlstsul/ime-cursor/monitor"
	"github.com/urfave/cli"
)

var (
	// newInstaller returns the cursor installer for the host.
	newInstaller = cursor.System

	// notifyContext returns the context that stops the monitor.
	notifyContext = signal.NotifyContext
)

func run(ctx *cli.Context) error {
	c, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	log := newLogger(c.Level())

	cur, err := cursor.New(newInstaller(log), fsys, c.Cursor.Default.Cursor(), c.Cursor.Native.Cursor())
	if err != nil {
		return err
	}
	m, err := monitor.New(monitor.Options{
		Delay:      time.Duration(c.Delay),
		Detector:   detector(c),
		Cursor:     cur,
		Sources:    hook.Defaults(time.Duration(c.Interval)),
		KeepCursor: keepCursor,
		Log:        log,
	})
	if err != nil {
		return err
	}

	sctx, stop := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go refreshOnHangup(sctx, m, log)

	log.Info().Dur("delay", time.Duration(c.Delay)).Str("config", configPath).Msg("monitor started")
	return m.Run(sctx)
}

// refreshOnHangup forces a refresh each time the process receives SIGHUP,
// until ctx ends.
func refreshOnHangup(ctx context.Context, m *monitor.Monitor, log zerolog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			st, err := m.RefreshNow(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("forced refresh")
				continue
			}
			log.Info().Stringer("mode", st.Mode).Bool("native", st.Native).Msg("forced refresh")
		}
	}
}

func detector(c *config.Config) ime.Detector {
	return ime.NewSystem(time.Duration(c.IME.Timeout), c.IME.Command, c.IME.NativeOutput)
}

func check(ctx *cli.Context) error {
	c, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	inst := newInstaller(newLogger(c.Level()))
	checked, err := cursor.Check(inst, fsys, c.Cursor.Default.Cursor(), c.Cursor.Native.Cursor())
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "configuration ok (delay %v, ime timeout %v)\n",
		time.Duration(c.Delay), time.Duration(c.IME.Timeout))
	if !checked {
		fmt.Fprintln(ctx.App.Writer, "cursor files not checked: this platform only logs cursor changes")
	}
	return nil
}

func mode(ctx *cli.Context) error {
	c, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	m, err := detector(c).InputMode(context.Background())
	if err != nil {
		return err
	}
	scheme := "default"
	if m.Composing() {
		scheme = "native"
	}
	fmt.Fprintf(ctx.App.Writer, "%v (%s cursor scheme)\n", m, scheme)
	return nil
}
