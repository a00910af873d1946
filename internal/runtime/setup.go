// Package runtime holds the process-lifecycle helpers main.go needs that
// don't belong to any one subsystem: environment loading and the systemd
// readiness handshake.
package runtime

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/joho/godotenv"
)

// LoadEnv loads file into the process environment. A missing file is
// returned as-is (os.IsNotExist) so callers can treat it as optional.
func LoadEnv(file string) error {
	return godotenv.Load(file)
}

// SystemdNotify tells systemd (if NOTIFY_SOCKET is set, i.e. the process
// was actually started as a unit) that the service reached ready, or
// report a status string while running.
// https://www.freedesktop.org/software/systemd/man/sd_notify.html
func SystemdNotify(ready bool, status string) {
	if os.Getenv("NOTIFY_SOCKET") == "" {
		return
	}

	args := []string{fmt.Sprintf("--pid=%d", os.Getpid())}
	if ready {
		args = append(args, "--ready")
	}
	if status != "" {
		args = append(args, fmt.Sprintf("--status=%s", status))
	}

	cmd := exec.Command("systemd-notify", args...)
	cmd.Run() // nothing to do if systemd-notify itself is missing
}
