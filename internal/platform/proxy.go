package platform

import (
	"log/slog"
	"net/url"
	"sync"

	"golang.org/x/net/http/httpproxy"
)

// registryLookup is replaced in tests.
var registryLookup = registryProxy

// SystemProxy resolves the proxy configured for the host. Environment
// variables (HTTP_PROXY, HTTPS_PROXY, NO_PROXY) win whenever any of them is
// set; on Windows the Internet Settings registry key is used only when all
// are unset.
type SystemProxy struct {
	logger *slog.Logger

	once     sync.Once
	envSet   bool
	envProxy func(*url.URL) (*url.URL, error)
	fallback string
}

// NewSystemProxy creates a resolver. Lookups are cached after first use.
func NewSystemProxy(logger *slog.Logger) *SystemProxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemProxy{logger: logger}
}

func (p *SystemProxy) init() {
	p.once.Do(func() {
		env := httpproxy.FromEnvironment()
		p.envProxy = env.ProxyFunc()
		p.envSet = env.HTTPProxy != "" || env.HTTPSProxy != "" || env.NoProxy != ""
		if p.envSet {
			return
		}
		p.fallback = registryLookup()
		if p.fallback != "" {
			p.logger.Info("using system proxy", "proxy", p.fallback)
		}
	})
}

// ResolveProxy returns the proxy URL for target, or "" for a direct connection.
func (p *SystemProxy) ResolveProxy(target string) string {
	p.init()

	u, err := url.Parse(target)
	if err != nil {
		return ""
	}

	if !p.envSet {
		return p.fallback
	}

	proxyURL, err := p.envProxy(u)
	if err != nil {
		p.logger.Warn("invalid proxy environment", "error", err)
		return ""
	}
	if proxyURL == nil {
		return ""
	}
	return proxyURL.String()
}
