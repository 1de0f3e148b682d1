// Package mobile provides gomobile-compatible bindings for embedding
// the hovertrail server in iOS/tvOS/Android applications.
//
// All exported functions use only primitive types (int, string, error)
// to satisfy gomobile's type restrictions.
package mobile

import (
	"fmt"
	"net"
	"sync"

	"hovertrail.io/engine"
)

var (
	srv  *engine.Server
	mu   sync.Mutex
	port int
)

// Start starts a server on the given port with default settings, bots
// included. The gRPC health service is not started on devices.
func Start(serverPort int) error {
	mu.Lock()
	defer mu.Unlock()

	if srv != nil {
		return fmt.Errorf("server already running")
	}

	cfg := engine.DefaultConfig()
	cfg.Addr = fmt.Sprintf("0.0.0.0:%d", serverPort)
	cfg.GRPCAddr = ""
	if err := cfg.Validate(); err != nil {
		return err
	}

	s := engine.NewServer(cfg, nil)
	if err := s.Start(); err != nil {
		return err
	}
	srv = s
	port = serverPort
	return nil
}

// Stop shuts down the running server.
func Stop() error {
	mu.Lock()
	s := srv
	srv = nil
	mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Stop()
}

// IsRunning returns true if the server is currently running.
func IsRunning() bool {
	mu.Lock()
	defer mu.Unlock()
	return srv != nil && srv.Running()
}

// GetStats returns the current game stats as a JSON string.
func GetStats() string {
	mu.Lock()
	s := srv
	mu.Unlock()

	if s == nil {
		return "{}"
	}
	return s.GetStatsJSON()
}

// GetLocalIP returns the device's LAN IPv4 address, or "unknown". Private
// addresses win over other routable ones.
func GetLocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "unknown"
	}
	return pickLANAddr(addrs)
}

func pickLANAddr(addrs []net.Addr) string {
	fallback := "unknown"
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		if ip.IsPrivate() {
			return ip.String()
		}
		if fallback == "unknown" {
			fallback = ip.String()
		}
	}
	return fallback
}

// GetConnectURL returns the websocket URL clients on the same network
// connect to.
func GetConnectURL() string {
	mu.Lock()
	p := port
	mu.Unlock()

	return fmt.Sprintf("ws://%s:%d/ws", GetLocalIP(), p)
}

// GetVersion returns the server version string.
func GetVersion() string {
	return engine.Version
}
