// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - Bool: Boolean-Getter
// - Uint: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	return func() bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return false
	}
}

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"STREAMKV_DEBUG":         {"STREAMKV_DEBUG", LogLevel(), "Show additional debug information (e.g. STREAMKV_DEBUG=1)"},
		"STREAMKV_SINK_TOKENS":   {"STREAMKV_SINK_TOKENS", SinkTokens(), "Number of leading cache slots that are never evicted (default 4)"},
		"STREAMKV_WINDOW":        {"STREAMKV_WINDOW", WindowTokens(), "Number of recent cache slots retained (default 1020)"},
		"STREAMKV_KV_CACHE_TYPE": {"STREAMKV_KV_CACHE_TYPE", KvCacheType(), "Storage type for the K/V cache, f16 or f32 (default f16)"},
		"STREAMKV_NUM_PARALLEL":  {"STREAMKV_NUM_PARALLEL", NumParallel(), "Number of parallel benchmark sessions (default 1)"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
