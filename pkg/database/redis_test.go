package database

import (
	"context"
	"testing"

	"github.com/ekaya-inc/datagenie-engine/pkg/config"
)

func TestNewRedisClient_Disabled(t *testing.T) {
	client, err := NewRedisClient(context.Background(), &config.RedisConfig{Port: 6379})
	if err != nil {
		t.Fatalf("expected no error for disabled redis, got %v", err)
	}
	if client != nil {
		t.Error("expected nil client when host is empty")
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client, err := NewRedisClient(ctx, &config.RedisConfig{Host: "127.0.0.1", Port: 1})
	if err == nil {
		t.Fatal("expected error for unreachable redis")
	}
	if client != nil {
		t.Error("expected nil client on connection failure")
	}
}
