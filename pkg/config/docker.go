package config

import (
	"net/url"
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether /.dockerenv exists. Cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps loopback hosts to host.docker.internal when running in Docker,
// so a containerised feedmap can reach Postgres or MinIO on the host machine.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}
	if isLoopback(host) {
		return "host.docker.internal"
	}
	return host
}

// ResolveEndpointForDocker applies ResolveHostForDocker to the host part of an endpoint URL.
// Unparseable or empty endpoints are returned unchanged.
func ResolveEndpointForDocker(endpoint string) string {
	if endpoint == "" || !IsRunningInDocker() {
		return endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	if isLoopback(u.Hostname()) {
		if port := u.Port(); port != "" {
			u.Host = "host.docker.internal:" + port
		} else {
			u.Host = "host.docker.internal"
		}
	}
	return u.String()
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1"
}
