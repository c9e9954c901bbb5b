package config

import (
	"os"
	"strconv"
	"strings"
)

// ClusteringEnv is the engine configuration read from the environment.
type ClusteringEnv struct {
	Enabled              bool
	MessageThreshold     int
	TimeThresholdMinutes int

	AutoK  bool
	FixedK int
	MinK   int
	MaxK   int
}

func LoadClusteringEnv() ClusteringEnv {
	return ClusteringEnv{
		Enabled:              envBool("BACKGROUND_CLUSTERING_ENABLED", true),
		MessageThreshold:     envInt("CLUSTERING_MESSAGE_THRESHOLD", 3),
		TimeThresholdMinutes: envInt("CLUSTERING_TIME_THRESHOLD_MINUTES", 30),
		AutoK:                envBool("CLUSTERING_AUTO_K", true),
		FixedK:               envInt("CLUSTERING_K", 5),
		MinK:                 envInt("CLUSTERING_MIN_K", 2),
		MaxK:                 envInt("CLUSTERING_MAX_K", 12),
	}
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes"
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
