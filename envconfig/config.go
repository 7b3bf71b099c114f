// config.go - Haupt-Konfigurationsfunktionen fuer streamkv
//
// Dieses Modul enthaelt:
// - LogLevel: Gibt Log-Level zurueck (STREAMKV_DEBUG)
// - SinkTokens: Anzahl permanenter Sink-Slots (STREAMKV_SINK_TOKENS)
// - WindowTokens: Groesse des rollenden Fensters (STREAMKV_WINDOW)
// - KvCacheType: Speichertyp des KV-Caches (STREAMKV_KV_CACHE_TYPE)
// - NumParallel: Parallele Sessions im Benchmark (STREAMKV_NUM_PARALLEL)
// - Var: Environment-Variablen-Zugriff
//
// Weitere Konfigurationen sind ausgelagert:
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via STREAMKV_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("STREAMKV_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

var (
	// SinkTokens - Anzahl der nie evakuierten Praefix-Slots
	// Default: 4, der empirisch stabile Wert fuer Attention-Sinks
	SinkTokens = Uint("STREAMKV_SINK_TOKENS", 4)

	// WindowTokens - Groesse des rollenden Fensters juengster Tokens
	// Default: 1020, so dass Sink+Fenster = 1024 Slots
	WindowTokens = Uint("STREAMKV_WINDOW", 1020)

	// NumParallel - Anzahl paralleler Benchmark-Sessions
	NumParallel = Uint("STREAMKV_NUM_PARALLEL", 1)
)

// KvCacheType gibt den Speichertyp des KV-Caches zurueck
// Konfigurierbar via STREAMKV_KV_CACHE_TYPE (f16 oder f32)
// Default: f16
func KvCacheType() string {
	if s := Var("STREAMKV_KV_CACHE_TYPE"); s != "" {
		return s
	}

	return "f16"
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
