package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	GDS          GDSConfig          `yaml:"gds"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Worker       WorkerConfig       `yaml:"worker"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	TicketEventsTopic  string   `yaml:"ticket_events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

// GDSConfig carries one credential block per configured vendor.
type GDSConfig struct {
	DefaultVendor string                  `yaml:"default_vendor"`
	Vendors       map[string]VendorConfig `yaml:"vendors"`
}

type VendorConfig struct {
	BaseURL          string `yaml:"base_url"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	TargetBranch     string `yaml:"target_branch"`
	PointOfSale      string `yaml:"point_of_sale"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	ConnectionBudget int    `yaml:"connection_budget"`
}

func (v VendorConfig) Timeout() time.Duration {
	if v.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(v.TimeoutSeconds) * time.Second
}

type OrchestratorConfig struct {
	VoidWindowHours     int `yaml:"void_window_hours"`
	RefundDeadlineDays  int `yaml:"refund_deadline_days"`
	ReadRetryMax        int `yaml:"read_retry_max"`
	InFlightTTLMinutes  int `yaml:"in_flight_ttl_minutes"`
	FareRulesCacheTTL   int `yaml:"fare_rules_cache_ttl_seconds"`
	SearchCacheTTL      int `yaml:"search_cache_ttl_seconds"`
	IdempotencyTTLHours int `yaml:"idempotency_ttl_hours"`
}

func (o OrchestratorConfig) VoidWindow() time.Duration {
	if o.VoidWindowHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(o.VoidWindowHours) * time.Hour
}

// RefundDeadline is how long after a flown segment's departure the ticket
// stays refundable. Zero means a flown coupon always blocks the refund.
func (o OrchestratorConfig) RefundDeadline() time.Duration {
	return time.Duration(o.RefundDeadlineDays) * 24 * time.Hour
}

func (o OrchestratorConfig) InFlightTTL() time.Duration {
	if o.InFlightTTLMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(o.InFlightTTLMinutes) * time.Minute
}

func (o OrchestratorConfig) IdempotencyTTL() time.Duration {
	if o.IdempotencyTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(o.IdempotencyTTLHours) * time.Hour
}

type WorkerConfig struct {
	ReconcileSweepMinutes int `yaml:"reconcile_sweep_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
