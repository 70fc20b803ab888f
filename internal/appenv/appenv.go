package appenv

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvLocal      = "local"
	EnvProduction = "production"
)

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) != "" {
		return strings.TrimSpace(val)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return fallback, nil
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d, nil
	}
	// plain numbers are seconds
	secs, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

func getEnvInt(key string, fallback int) (int, error) {
	val := getEnv(key, "")
	if val == "" {
		return fallback, nil
	}
	return strconv.Atoi(val)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	val := getEnv(key, "")
	if val == "" {
		return fallback, nil
	}
	return strconv.ParseBool(val)
}
