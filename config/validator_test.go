package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fileExistsStruct struct {
	Path string `validate:"file_exists"`
}

type dirExistsStruct struct {
	Path string `validate:"dir_exists"`
}

type hostStruct struct {
	Host string `validate:"host"`
}

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "ledger.log")
	if err := os.WriteFile(tmpFile, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{"empty path (optional)", "", true},
		{"existing file", tmpFile, true},
		{"non-existent file", filepath.Join(tmpDir, "missing.log"), false},
		{"directory instead of file", tmpDir, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(fileExistsStruct{Path: tt.path})
			if tt.expected && err != nil {
				t.Errorf("expected valid, got error: %v", err)
			}
			if !tt.expected && err == nil {
				t.Errorf("expected invalid for path %q, got valid", tt.path)
			}
		})
	}
}

func TestValidateDirExists(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "flow.yaml")
	if err := os.WriteFile(tmpFile, []byte("name: x"), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{"empty path (optional)", "", true},
		{"existing directory", tmpDir, true},
		{"non-existent directory", filepath.Join(tmpDir, "nope"), false},
		{"file instead of directory", tmpFile, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(dirExistsStruct{Path: tt.path})
			if tt.expected && err != nil {
				t.Errorf("expected valid, got error: %v", err)
			}
			if !tt.expected && err == nil {
				t.Errorf("expected invalid for path %q, got valid", tt.path)
			}
		})
	}
}

func TestValidateHost(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected bool
	}{
		{"empty host (optional)", "", true},
		{"localhost", "localhost", true},
		{"IPv4", "127.0.0.1", true},
		{"any address", "0.0.0.0", true},
		{"IPv6", "2001:db8::1", true},
		{"hostname", "api.example.com", true},
		{"leading hyphen", "-api.example.com", false},
		{"empty label", "api..example.com", false},
		{"space", "invalid host", false},
		{"underscore", "my_server", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(hostStruct{Host: tt.host})
			if tt.expected && err != nil {
				t.Errorf("expected valid, got error: %v", err)
			}
			if !tt.expected && err == nil {
				t.Errorf("expected invalid for host %q, got valid", tt.host)
			}
		})
	}
}

func TestValidateCrossField(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name: "tracing without endpoint",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Endpoint = ""
			},
			field: "Config.Tracing.Endpoint",
		},
		{
			name: "file ledger without path",
			mutate: func(c *Config) {
				c.Ledger.Enabled = true
				c.Ledger.Backend = "file"
				c.Ledger.Path = ""
			},
			field: "Config.Ledger.Path",
		},
		{
			name: "redis ledger without address",
			mutate: func(c *Config) {
				c.Ledger.Enabled = true
				c.Ledger.Backend = "redis"
				c.Ledger.Redis.Address = ""
			},
			field: "Config.Ledger.Redis.Address",
		},
		{
			name: "backoff max below initial",
			mutate: func(c *Config) {
				c.Executor.Backoff.Initial = time.Second
				c.Executor.Backoff.Max = time.Millisecond
			},
			field: "Config.Executor.Backoff.Max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := ValidateWithDetails(cfg)
			var details ValidationErrors
			if !errors.As(err, &details) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			if len(details) != 1 || details[0].Field != tt.field {
				t.Errorf("expected a single error on %s, got %v", tt.field, details)
			}
		})
	}

	t.Run("disabled ledger ignores missing path", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Ledger.Path = ""
		if err := ValidateWithDetails(cfg); err != nil {
			t.Errorf("expected valid config, got %v", err)
		}
	})
}

func TestFormatValidationError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Level = "verbose"
	cfg.Server.Port = 70000

	err := ValidateWithDetails(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		"Config.Log.Level: must be one of [debug info warn error]",
		"Config.Server.Port: must be at most 65535",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestIsValidHostChar(t *testing.T) {
	for _, c := range []byte("azAZ09-") {
		if !isValidHostChar(c) {
			t.Errorf("isValidHostChar(%q) = false, want true", c)
		}
	}
	for _, c := range []byte(" _.:!@") {
		if isValidHostChar(c) {
			t.Errorf("isValidHostChar(%q) = true, want false", c)
		}
	}
}
