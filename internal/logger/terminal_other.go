//go:build !linux && !darwin && !windows

package logger

func isTerminal(fd uintptr) bool {
	return false
}
