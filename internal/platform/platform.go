// Package platform implements the out-of-scope host-integration
// collaborator named by spec §1: a small seam the Controller Façade
// calls through for the download directory default, the LAN-facing
// local address, and opening a finished download in the OS file
// manager. None of this carries transfer logic; it exists so
// cmd/goshare has somewhere real to stand.
package platform

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Platform is the seam; tests can substitute a fake to avoid touching
// the real filesystem or spawning a process.
type Platform interface {
	DefaultDownloadDir() string
	LocalIPv4() (net.IP, error)
	OpenFile(path string) error
}

type osPlatform struct{}

// Default returns the concrete Platform for the running OS.
func Default() Platform {
	return osPlatform{}
}

func (osPlatform) DefaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads", "lanshare")
}

// LocalIPv4 returns the first non-loopback IPv4 address bound to this
// host, used to display "reachable at" information; it never dials
// out.
func (osPlatform) LocalIPv4() (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("platform: enumerate interfaces: %w", err)
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, fmt.Errorf("platform: no non-loopback IPv4 address found")
}

// OpenFile shells out to the OS's default opener for path.
func (osPlatform) OpenFile(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}
