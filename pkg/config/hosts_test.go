package config

import "testing"

func TestResolveHost(t *testing.T) {
	tests := []struct {
		host          string
		containerized bool
		want          string
	}{
		{"localhost", false, "localhost"},
		{"localhost", true, DockerHostAlias},
		{"LOCALHOST", true, DockerHostAlias},
		{"127.0.0.1", true, DockerHostAlias},
		{"127.0.0.53", true, DockerHostAlias},
		{"::1", true, DockerHostAlias},
		{"[::1]", true, DockerHostAlias},
		{"warehouse.internal", true, "warehouse.internal"},
		{"10.0.0.5", true, "10.0.0.5"},
		{"", true, ""},
	}
	for _, tt := range tests {
		if got := resolveHost(tt.host, tt.containerized); got != tt.want {
			t.Errorf("resolveHost(%q, %v) = %q, want %q", tt.host, tt.containerized, got, tt.want)
		}
	}
}

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		endpoint      string
		containerized bool
		want          string
	}{
		{"http://localhost:11434/v1", false, "http://localhost:11434/v1"},
		{"http://localhost:11434/v1", true, "http://host.docker.internal:11434/v1"},
		{"http://127.0.0.1/v1", true, "http://host.docker.internal/v1"},
		{"https://api.example.com/v1", true, "https://api.example.com/v1"},
		{"not a url", true, "not a url"},
	}
	for _, tt := range tests {
		if got := resolveEndpoint(tt.endpoint, tt.containerized); got != tt.want {
			t.Errorf("resolveEndpoint(%q, %v) = %q, want %q", tt.endpoint, tt.containerized, got, tt.want)
		}
	}
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "cache.internal", Port: 6380}
	if got := cfg.Addr(); got != "cache.internal:6380" {
		t.Errorf("Addr() = %q", got)
	}
}
