//go:build !unix

package main

// watchTermResize is a no-op on non-unix targets: SIGWINCH doesn't
// exist, so currentTermWidth just reports a fixed fallback.
func watchTermResize() (stop func()) { return func() {} }

func currentTermWidth() int { return 80 }
