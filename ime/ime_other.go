//go:build !windows

package ime

import "time"

func newSystem(timeout time.Duration, args []string, nativeOutput string) Detector {
	return &Command{Args: args, NativeOutput: nativeOutput, Timeout: timeout}
}
