//go:build !linux

package launcher

import "fmt"

// Exec is only available on linux.
func Exec(Options, []string) error {
	return fmt.Errorf("sandbox launcher is only supported on linux")
}
