package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Verbose enables debug output when true
var Verbose bool

// Debugf prints debug messages when Verbose is true
func Debugf(format string, args ...any) {
	if Verbose {
		fmt.Printf("[DEBUG] "+format+"\n", args...)
	}
}

// Timeouts holds the protocol timeout tunables.
type Timeouts struct {
	Response time.Duration
	Chunk    time.Duration
	Overall  time.Duration
}

// LoadTimeouts reads timeout overrides from the environment, with optional
// .env support. Unset or unparsable values fall back to the protocol
// defaults (5s response, 10s per chunk, 60s overall).
func LoadTimeouts() Timeouts {
	// Missing .env is fine; real env vars still apply.
	_ = godotenv.Load()

	return Timeouts{
		Response: envDuration("RUUVITOOL_RESPONSE_TIMEOUT", 5*time.Second),
		Chunk:    envDuration("RUUVITOOL_CHUNK_TIMEOUT", 10*time.Second),
		Overall:  envDuration("RUUVITOOL_OVERALL_TIMEOUT", 60*time.Second),
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	// Bare numbers are seconds.
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	Debugf("ignoring invalid %s=%q", key, v)
	return fallback
}
