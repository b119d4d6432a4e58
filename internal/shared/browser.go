package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Overridable in tests to exercise the per-platform branches.
var getRuntime = func() string { return runtime.GOOS }

// OpenBrowser opens the system browser at url, used to hand the user the
// Spotify consent page and the Tidal device-login page. Login flows fall
// back to printing the URL when this fails, so callers treat errors as a
// warning, not a stop.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	rt := getRuntime()
	switch rt {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", rt)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}
