package daemon

import (
	"fmt"
	"os/exec"
	"runtime"
)

// systemBrowser opens URLs with the platform's default handler.
type systemBrowser struct{}

func (systemBrowser) Open(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	go cmd.Wait()
	return nil
}
