//go:build !windows

package cursor

import "github.com/rs/zerolog"

func systemInstaller(log zerolog.Logger) Installer { return LogInstaller{Log: log} }
