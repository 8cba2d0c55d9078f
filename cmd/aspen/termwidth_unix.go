//go:build unix

package main

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// termWidth is kept in sync with the controlling terminal's column
// count so the REPL's :help divider can reflow
// after a SIGWINCH (a window resize) instead of wrapping at whatever
// width happened to be current at startup.
var termWidth int64 = 80

func init() {
	if w, ok := queryTermWidth(); ok {
		atomic.StoreInt64(&termWidth, int64(w))
	}
}

func queryTermWidth() (int, bool) {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil || ws.Col == 0 {
		return 0, false
	}
	return int(ws.Col), true
}

// watchTermResize starts a goroutine updating termWidth on every
// SIGWINCH until the REPL returns. The caller's defer should cancel
// via the returned stop func so the signal channel doesn't leak past
// one REPL session.
func watchTermResize() (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGWINCH)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				if w, ok := queryTermWidth(); ok {
					atomic.StoreInt64(&termWidth, int64(w))
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

func currentTermWidth() int {
	return int(atomic.LoadInt64(&termWidth))
}
