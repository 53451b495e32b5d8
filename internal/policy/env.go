package policy

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by seatbelt.
const (
	EnvFile       = "SEATBELT_FILE"
	EnvFrozen     = "SEATBELT_FROZEN"
	EnvDisable    = "SEATBELT_DISABLE"
	EnvThreadsafe = "SEATBELT_THREADSAFE"
	EnvVerbose    = "SEATBELT_VERBOSE"
	EnvKeep       = "SEATBELT_KEEP"
	EnvIncrease   = "SEATBELT_INCREASE"
	EnvLockWait   = "SEATBELT_LOCK_TIMEOUT"
	EnvHistory    = "SEATBELT_HISTORY"
	EnvWorkerID   = "SEATBELT_WORKER_ID"
	EnvCI         = "CI"
)

// parallelWorkerVars indicate the host runs lint in parallel workers.
var parallelWorkerVars = []string{"JEST_WORKER_ID", "VITEST_POOL_ID", EnvWorkerID}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// MapLookup adapts a map to a LookupFunc.
func MapLookup(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

// EnvFallbacks derives soft defaults from the CI environment. They sit
// below the config file, so explicit configuration wins.
func EnvFallbacks(lookup LookupFunc) Config {
	var c Config
	if v, ok := lookup(EnvCI); ok && truthy(v) {
		c.Frozen = Ptr(true)
	}
	for _, name := range parallelWorkerVars {
		if v, ok := lookup(name); ok && v != "" {
			c.Threadsafe = Ptr(true)
			break
		}
	}
	return c
}

// EnvOverrides reads SEATBELT_* variables. They sit above every other layer.
func EnvOverrides(lookup LookupFunc) (Config, error) {
	var c Config
	if v, ok := lookup(EnvFile); ok && v != "" {
		c.RecordFile = Ptr(v)
	}
	if v, ok := lookup(EnvHistory); ok && v != "" {
		c.HistoryFile = Ptr(v)
	}

	bools := []struct {
		name string
		dst  **bool
	}{
		{EnvFrozen, &c.Frozen},
		{EnvDisable, &c.Disable},
		{EnvThreadsafe, &c.Threadsafe},
	}
	for _, b := range bools {
		v, ok := lookup(b.name)
		if !ok || v == "" {
			continue
		}
		parsed, err := parseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", b.name, err)
		}
		*b.dst = Ptr(parsed)
	}

	if v, ok := lookup(EnvVerbose); ok && v != "" {
		verb, err := ParseVerbosity(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvVerbose, err)
		}
		c.Verbose = Ptr(verb)
	}
	if v, ok := lookup(EnvKeep); ok && v != "" {
		c.KeepRules = Ptr(ParseRuleSet(v))
	}
	if v, ok := lookup(EnvIncrease); ok && v != "" {
		c.AllowIncreaseRules = Ptr(ParseRuleSet(v))
	}
	if v, ok := lookup(EnvLockWait); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvLockWait, err)
		}
		c.LockTimeout = Ptr(d)
	}
	return c, nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no", "off":
		return false
	}
	return true
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(v))
}
