package app

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

type Config struct {
	Env       string
	HTTPAddr  string
	CORSAllow []string

	ExecURL     string // remote execution endpoint (Piston-compatible)
	ExecTimeout time.Duration

	GracePeriod     time.Duration // offline presence grace window
	EvictEmptyRooms bool

	StaticDir string // built frontend; empty disables static serving
}

func LoadConfig() Config {
	cfg := Config{
		Env:       getEnv("APP_ENV", "dev"),
		HTTPAddr:  getEnv("HTTP_ADDR", ":5000"),
		ExecURL:   getEnv("EXEC_URL", "https://emkc.org/api/v2/piston/execute"),
		StaticDir: getEnv("STATIC_DIR", "frontend/dist"),
	}
	cfg.ExecTimeout = time.Duration(getEnvInt("EXEC_TIMEOUT", 15)) * time.Second
	cfg.GracePeriod = time.Duration(getEnvInt("GRACE_PERIOD", 10)) * time.Second
	cfg.EvictEmptyRooms = getEnvBool("EVICT_EMPTY_ROOMS", false)
	// CORS allowlist
	allow := getEnv("CORS_ALLOW", "http://localhost:5173")
	cfg.CORSAllow = splitCSV(allow)
	log.Printf("config: %+v\n", cfg)
	return cfg
}

// getEnv returns the env var or a default
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getEnvInt parses an int env var with a fallback
func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		var i int
		_, _ = fmt.Sscanf(v, "%d", &i)
		if i > 0 {
			return i
		}
	}
	return def
}

// getEnvBool treats "1"/"true"/"yes" as true
func getEnvBool(k string, def bool) bool {
	v := strings.ToLower(os.Getenv(k))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

// splitCSV trims and filters a comma-separated list
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
