//go:build windows

package platform

import (
	"strings"

	"golang.org/x/sys/windows/registry"
)

const internetSettingsKey = `Software\Microsoft\Windows\CurrentVersion\Internet Settings`

// registryProxy reads the user's WinINet proxy. Only a single host:port
// server is supported; per-protocol lists use their http= entry.
func registryProxy() string {
	k, err := registry.OpenKey(registry.CURRENT_USER, internetSettingsKey, registry.QUERY_VALUE)
	if err != nil {
		return ""
	}
	defer k.Close()

	enabled, _, err := k.GetIntegerValue("ProxyEnable")
	if err != nil || enabled == 0 {
		return ""
	}

	server, _, err := k.GetStringValue("ProxyServer")
	if err != nil {
		return ""
	}
	return proxyServerURL(server)
}

func proxyServerURL(server string) string {
	server = strings.TrimSpace(server)
	if server == "" {
		return ""
	}
	if strings.Contains(server, "=") {
		for _, entry := range strings.Split(server, ";") {
			if proto, addr, ok := strings.Cut(entry, "="); ok && strings.EqualFold(strings.TrimSpace(proto), "http") {
				return "http://" + strings.TrimSpace(addr)
			}
		}
		return ""
	}
	if strings.Contains(server, "://") {
		return server
	}
	return "http://" + server
}
