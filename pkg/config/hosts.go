package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
)

// DockerHostAlias reaches services published on the machine running the container.
const DockerHostAlias = "host.docker.internal"

var inContainer = sync.OnceValue(func() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
})

// ResolveHost maps a loopback host to DockerHostAlias when the process runs
// inside a container. Any other host is returned unchanged.
func ResolveHost(host string) string {
	return resolveHost(host, inContainer())
}

func resolveHost(host string, containerized bool) string {
	if !containerized || !isLoopback(host) {
		return host
	}
	return DockerHostAlias
}

// ResolveEndpoint applies ResolveHost to the host part of an HTTP base URL,
// keeping scheme, port and path. Unparseable input is returned as is.
func ResolveEndpoint(endpoint string) string {
	return resolveEndpoint(endpoint, inContainer())
}

func resolveEndpoint(endpoint string, containerized bool) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	host := u.Hostname()
	resolved := resolveHost(host, containerized)
	if resolved == host {
		return endpoint
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(resolved, port)
	} else {
		u.Host = resolved
	}
	return u.String()
}

func isLoopback(host string) bool {
	h := strings.Trim(strings.ToLower(host), "[]")
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

// Addr is the resolved host:port of the Redis server.
func (c *RedisConfig) Addr() string {
	return net.JoinHostPort(ResolveHost(c.Host), strconv.Itoa(c.Port))
}
