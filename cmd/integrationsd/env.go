package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const configEnvPrefix = "INTEGRATIONS__"

// rawConfigFromEnv turns INTEGRATIONS__PLATFORMS__GITHUB__CLIENT_ID=x into
// {"platforms": {"github": {"client_id": "x"}}}. Scopes are comma separated.
func rawConfigFromEnv(environ []string) map[string]any {
	out := map[string]any{}
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, configEnvPrefix) {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(key, configEnvPrefix)), "__")
		if len(path) == 0 || path[0] == "" {
			continue
		}
		setPath(out, path, envValue(path[len(path)-1], value))
	}
	return out
}

func envValue(leaf string, value string) any {
	value = strings.TrimSpace(value)
	if leaf != "scopes" {
		return value
	}
	scopes := []string{}
	for _, scope := range strings.Split(value, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			scopes = append(scopes, scope)
		}
	}
	return scopes
}

func setPath(root map[string]any, path []string, value any) {
	node := root
	for _, segment := range path[:len(path)-1] {
		next, ok := node[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[segment] = next
		}
		node = next
	}
	node[path[len(path)-1]] = value
}

// settings are process level choices that are not part of core.Config.
type settings struct {
	Addr            string
	LogLevel        string
	LogDevelopment  bool
	Store           string
	DSN             string
	Cache           bool
	RedisAddr       string
	RedisNamespace  string
	Broadcaster     string
	KafkaBrokers    []string
	SealerKey       string
	AsyncSync       bool
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
}

func settingsFromEnv(lookup func(string) (string, bool)) settings {
	get := func(key string, fallback string) string {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
		return fallback
	}
	flag := func(key string, fallback bool) bool {
		parsed, err := strconv.ParseBool(get(key, strconv.FormatBool(fallback)))
		if err != nil {
			return fallback
		}
		return parsed
	}
	duration := func(key string, fallback time.Duration) time.Duration {
		parsed, err := time.ParseDuration(get(key, fallback.String()))
		if err != nil || parsed <= 0 {
			return fallback
		}
		return parsed
	}
	var brokers []string
	for _, broker := range strings.Split(get("INTEGRATIONSD_KAFKA_BROKERS", ""), ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return settings{
		Addr:            get("INTEGRATIONSD_ADDR", ":8080"),
		LogLevel:        get("INTEGRATIONSD_LOG_LEVEL", "info"),
		LogDevelopment:  flag("INTEGRATIONSD_LOG_DEVELOPMENT", false),
		Store:           strings.ToLower(get("INTEGRATIONSD_STORE", "memory")),
		DSN:             get("INTEGRATIONSD_DSN", ""),
		Cache:           flag("INTEGRATIONSD_CACHE", false),
		RedisAddr:       get("INTEGRATIONSD_REDIS_ADDR", "localhost:6379"),
		RedisNamespace:  get("INTEGRATIONSD_REDIS_NAMESPACE", "integrations"),
		Broadcaster:     strings.ToLower(get("INTEGRATIONSD_BROADCASTER", "hub")),
		KafkaBrokers:    brokers,
		SealerKey:       get("INTEGRATIONSD_SEALER_KEY", ""),
		AsyncSync:       flag("INTEGRATIONSD_ASYNC_SYNC", true),
		PollInterval:    duration("INTEGRATIONSD_SYNC_POLL_INTERVAL", time.Second),
		ShutdownTimeout: duration("INTEGRATIONSD_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func osSettings() settings {
	return settingsFromEnv(os.LookupEnv)
}
