//go:build windows

package platform

import "testing"

func TestProxyServerURL(t *testing.T) {
	tests := map[string]string{
		"":                                   "",
		"proxy:8080":                         "http://proxy:8080",
		"http://proxy:8080":                  "http://proxy:8080",
		"http=web:80;https=secure:443":       "http://web:80",
		"https=secure:443;ftp=files:21":      "",
		" socks=s:1080; http = plain:3128 ": "http://plain:3128",
	}
	for in, want := range tests {
		if got := proxyServerURL(in); got != want {
			t.Errorf("proxyServerURL(%q) = %q, want %q", in, got, want)
		}
	}
}
