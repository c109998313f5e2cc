// Package serial opens the radio bridge serial devices.
package serial

import (
	"fmt"
	"os"
)

// Candidates lists the USB serial device paths that exist on this host, in
// probe order.
func Candidates() []string {
	var paths []string
	for _, prefix := range []string{"/dev/ttyACM", "/dev/ttyUSB"} {
		for i := 0; i < 10; i++ {
			paths = append(paths, fmt.Sprintf("%s%d", prefix, i))
		}
	}
	out := paths[:0]
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// AutoDetect returns the first existing candidate, skipping any path in
// exclude.
func AutoDetect(exclude ...string) string {
	for _, p := range Candidates() {
		skip := false
		for _, e := range exclude {
			if p == e {
				skip = true
				break
			}
		}
		if !skip {
			return p
		}
	}
	return ""
}
