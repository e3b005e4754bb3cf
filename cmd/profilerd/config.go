package main

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	ServiceConfig struct {
		Environment string

		SentryDSN string `env:"SENTRY_DSN"`
		Port      string `env:"PORT" env-default:"8080"`
		LogLevel  string `env:"LOG_LEVEL" env-default:"info"`

		EventsKafkaBrokers []string `env:"EVENTS_KAFKA_BROKERS" env-separator:","`
		EventsKafkaTopic   string   `env:"EVENTS_KAFKA_TOPIC"`
		EventsKafkaGroupID string   `env:"EVENTS_KAFKA_GROUP_ID"`

		// SnapshotsBackend is one of gcs, blob or badger. SnapshotsBucket is
		// then a GCS bucket name, a gocloud bucket URL or a Badger directory,
		// an empty directory keeping Badger in memory.
		SnapshotsBackend string `env:"SNAPSHOTS_BACKEND"`
		SnapshotsBucket  string `env:"SNAPSHOTS_BUCKET"`

		ProjectRoots        []string `env:"PROJECT_ROOTS" env-separator:","`
		LocationResolverURL string   `env:"LOCATION_RESOLVER_URL"`
		MemoryPageSize      int      `env:"MEMORY_PAGE_SIZE" env-default:"500"`
	}
)

var (
	serviceConfigs = map[string]ServiceConfig{
		"production": {
			EventsKafkaBrokers: []string{"profiler-kafka.service.consul:9092"},
			EventsKafkaTopic:   "profiler-events",
			EventsKafkaGroupID: "profilerd",
			SnapshotsBackend:   "gcs",
			SnapshotsBucket:    "profiler-snapshots",
		},
		"development": {
			SnapshotsBackend: "blob",
			SnapshotsBucket:  "mem://",
		},
		"test": {
			SnapshotsBackend: "badger",
			ProjectRoots:     []string{"com.example"},
		},
	}
)

// loadConfig starts from the defaults of envName and applies the process
// environment on top of them.
func loadConfig(envName string) (ServiceConfig, error) {
	c, exists := serviceConfigs[envName]
	if !exists {
		return ServiceConfig{}, fmt.Errorf("service config for environment %v does not exist", envName)
	}
	c.Environment = envName
	if err := cleanenv.ReadEnv(&c); err != nil {
		return ServiceConfig{}, fmt.Errorf("can't read configuration: %w", err)
	}
	return c, nil
}
