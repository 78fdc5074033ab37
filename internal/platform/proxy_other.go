//go:build !windows

package platform

// registryProxy has no equivalent outside Windows.
func registryProxy() string {
	return ""
}
