package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			InstanceID:             "test",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Topology: TopologyConfig{
			Path: "topology.tsv",
		},
		Announcements: AnnouncementsConfig{
			Path:       "announcements.tsv",
			BlockCount: 1,
		},
		Seeding: SeedingConfig{
			TimestampComparison: "disabled",
			Tiebreak:            "lowest_asn",
		},
		Propagation: PropagationConfig{
			TimestampComparison: "disabled",
			Tiebreak:            "lowest_asn",
		},
		RIB: RIBConfig{
			Layout: "row_major",
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_NoTopologyPath(t *testing.T) {
	cfg := validConfig()
	cfg.Topology.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty topology.path")
	}
}

func TestValidate_NoAnnouncementsSource(t *testing.T) {
	cfg := validConfig()
	cfg.Announcements.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when neither announcements.path nor kafka.brokers is set")
	}
}

func TestValidate_KafkaBrokersSatisfiesAnnouncementsSource(t *testing.T) {
	cfg := validConfig()
	cfg.Announcements.Path = ""
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.Announcements = ConsumerConfig{GroupID: "g1", Topics: []string{"t1"}}
	cfg.Kafka.FetchMaxBytes = 1024
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected kafka.brokers to satisfy the announcements-source requirement, got: %v", err)
	}
}

func TestValidate_BlockCountZero(t *testing.T) {
	cfg := validConfig()
	cfg.Announcements.BlockCount = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for block_count = 0")
	}
}

func TestValidate_InvalidSeedingTimestampComparison(t *testing.T) {
	cfg := validConfig()
	cfg.Seeding.TimestampComparison = "sometimes"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid seeding.timestamp_comparison")
	}
}

func TestValidate_InvalidPropagationTiebreak(t *testing.T) {
	cfg := validConfig()
	cfg.Propagation.Tiebreak = "coin_flip"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid propagation.tiebreak")
	}
}

func TestValidate_InvalidRIBLayout(t *testing.T) {
	cfg := validConfig()
	cfg.RIB.Layout = "column_major"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unrecognized rib.layout")
	}
}

func TestValidate_ShutdownTimeoutZero(t *testing.T) {
	cfg := validConfig()
	cfg.Service.ShutdownTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for shutdown_timeout_seconds = 0")
	}
}

func TestValidate_KafkaBrokersRequireGroupID(t *testing.T) {
	cfg := validConfig()
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when kafka.brokers is set without announcements.group_id")
	}
}

func TestSeedingPolicy_ResolvesEnums(t *testing.T) {
	cfg := validConfig()
	cfg.Seeding.TimestampComparison = "prefer_newer"
	cfg.Seeding.Tiebreak = "random"
	ts, tb := cfg.SeedingPolicy()
	if ts != 1 { // policy.TimestampPreferNewer
		t.Errorf("expected TimestampPreferNewer, got %v", ts)
	}
	if tb != 0 { // policy.TiebreakRandom
		t.Errorf("expected TiebreakRandom, got %v", tb)
	}
}

func writeMinimalYAML(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	data := `
topology:
  path: "topology.tsv"
announcements:
  path: "announcements.tsv"
`
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_EnvOverrideTopologyPath(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BGPEXTRAPOLATE_TOPOLOGY__PATH", "/env/topology.tsv")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Topology.Path != "/env/topology.tsv" {
		t.Errorf("expected topology.path from env, got %q", cfg.Topology.Path)
	}
}

func TestLoad_EnvOverrideLogLevel(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BGPEXTRAPOLATE_SERVICE__LOG_LEVEL", "debug")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug' from env, got %q", cfg.Service.LogLevel)
	}
}

func TestLoad_EnvInvalidLayoutFailsValidation(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("BGPEXTRAPOLATE_RIB__LAYOUT", "column_major")

	_, err := Load(p)
	if err == nil {
		t.Fatal("expected validation error for unrecognized rib.layout via env")
	}
}
