package killswitch

import (
	"bufio"
	"context"
	"io"
	"strings"

	"go.uber.org/zap"
)

// StopWord trips the switch when read as a whole line, in any case.
const StopWord = "STOP"

// IsStop reports whether line is the stop word.
func IsStop(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), StopWord)
}

// Monitor reads lines from r and trips sw on the stop word. It returns nil
// after tripping or at end of input, and ctx.Err() when ctx ends first.
//
// Reads happen on a helper goroutine that exits when r returns an error or
// EOF; close r to release it if ctx ends first.
//
//	go killswitch.Monitor(ctx, os.Stdin, sw, logger)
func Monitor(ctx context.Context, r io.Reader, sw *Switch, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	lines := make(chan string)
	readErr := make(chan error, 1)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-quit:
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sw.Done():
			return nil
		case err := <-readErr:
			if err != nil && ctx.Err() == nil {
				logger.Warn("kill switch input closed", zap.Error(err))
			}
			return nil
		case line := <-lines:
			if IsStop(line) {
				if sw.Trip("operator typed " + StopWord) {
					logger.Warn("kill switch activated", zap.String("source", "input"))
				}
				return nil
			}
		}
	}
}
