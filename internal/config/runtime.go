package config

import (
	"os"
	"runtime"
	"strconv"
)

type Runtime struct {
	HTTPAddr      string
	CacheMaxItems int
	Workers       int
	ObsBuffer     int
	LogLevel      string
	LogFormat     string
}

func Load() Runtime {
	return Runtime{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		CacheMaxItems: getenvInt("CHECK_CACHE_MAX_ITEMS", 1024, 1),
		Workers:       getenvInt("CHECK_WORKERS", runtime.GOMAXPROCS(0), 1),
		ObsBuffer:     getenvInt("CHECK_OBS_BUFFER", 4096, 1),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFormat:     getenv("LOG_FORMAT", "json"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback, min int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		return fallback
	}
	return v
}
