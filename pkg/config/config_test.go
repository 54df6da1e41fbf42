package config

import (
	"os"
	"testing"
	"time"
)

type sampleConfig struct {
	Endpoint string        `split_words:"true" required:"true"`
	Timeout  time.Duration `split_words:"true" default:"5s"`
	Rounds   int           `split_words:"true" default:"3"`
}

func TestNewFillsFromEnvironment(t *testing.T) {
	t.Setenv("SAMPLE_ENDPOINT", "https://example.test")
	t.Setenv("SAMPLE_TIMEOUT", "10s")

	conf, err := New[sampleConfig]("SAMPLE")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Endpoint != "https://example.test" {
		t.Fatalf("Endpoint = %q", conf.Endpoint)
	}
	if conf.Timeout != 10*time.Second {
		t.Fatalf("Timeout = %v", conf.Timeout)
	}
	if conf.Rounds != 3 {
		t.Fatalf("Rounds = %d, want default 3", conf.Rounds)
	}
}

func TestNewMissingRequired(t *testing.T) {
	t.Setenv("SAMPLE_ENDPOINT", "placeholder") // registers restore
	os.Unsetenv("SAMPLE_ENDPOINT")

	if _, err := New[sampleConfig]("SAMPLE"); err == nil {
		t.Fatal("New() accepted missing required variable")
	}
}
