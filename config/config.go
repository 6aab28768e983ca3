package config

import (
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	Variant   VariantConfig   `mapstructure:"variant"`
}

type ServerConfig struct {
	AppEnv   string `mapstructure:"app_env" default:"dev"`
	GRPCPort string `mapstructure:"grpc_port" default:":8082"`
	HTTPPort string `mapstructure:"http_port" default:":8080"`
}

type LoggerConfig struct {
	Level             string `mapstructure:"level" default:"debug"`
	Encoding          string `mapstructure:"encoding" default:"console"`
	DisableCaller     bool   `mapstructure:"disable_caller" default:"false"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace" default:"true"`
}

type DatabaseConfig struct {
	// Driver is either postgres or mysql.
	Driver          string `mapstructure:"driver" default:"postgres"`
	Host            string `mapstructure:"host" default:"localhost"`
	Port            string `mapstructure:"port" default:"5433"`
	User            string `mapstructure:"user" default:"omnipos"`
	Password        string `mapstructure:"password" default:"omnipos"`
	DBName          string `mapstructure:"name" default:"omnipos_inventory"`
	SSLMode         string `mapstructure:"sslmode" default:"disable"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" default:"10"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" default:"5"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime" default:"300"`
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time" default:"60"`
	EnsureSchema    bool   `mapstructure:"ensure_schema" default:"true"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" default:"localhost:6379"`
	Password string `mapstructure:"password" default:""`
	DB       int    `mapstructure:"db" default:"0"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled" default:"true"`
	Brokers []string `mapstructure:"brokers" default:"localhost:9092"`
	Topic   string   `mapstructure:"topic_orders" default:"orders.events"`
	GroupID string   `mapstructure:"group_inventory" default:"inventory"`
}

// InventoryConfig tunes the reservation controller and the per-key cache layer.
type InventoryConfig struct {
	// Locker selects the lock-based critical section: "redis" or "local".
	Locker                    string  `mapstructure:"locker" default:"redis"`
	LockTTLSeconds            int     `mapstructure:"lock_ttl_seconds" default:"5"`
	LockAttempts              int     `mapstructure:"lock_attempts" default:"3"`
	LockRetryDelayMs          int     `mapstructure:"lock_retry_delay_ms" default:"100"`
	LedgerCacheTTLSeconds     int     `mapstructure:"ledger_cache_ttl_seconds" default:"300"`
	RaceDelayProbability      float64 `mapstructure:"race_delay_probability" default:"0.3"`
	MaxRaceDelayMs            int     `mapstructure:"max_race_delay_ms" default:"100"`
	DuplicateWriteProbability float64 `mapstructure:"duplicate_write_probability" default:"0.1"`
	StaleReadProbability      float64 `mapstructure:"stale_read_probability" default:"0.05"`
	DroppedWriteProbability   float64 `mapstructure:"dropped_write_probability" default:"0.01"`
}

// VariantConfig holds the selection served to requests that carry no overrides,
// plus the warmup knobs that are not part of a selection.
type VariantConfig struct {
	CacheMode              string  `mapstructure:"cache_mode" default:"standard"`
	Algorithm              string  `mapstructure:"algorithm" default:"lock_based"`
	TimeoutMs              int     `mapstructure:"timeout_ms" default:"5000"`
	Retries                int     `mapstructure:"retries" default:"3"`
	WarmupMode             string  `mapstructure:"warmup_mode" default:"on_demand"`
	WarmupTTLSeconds       int     `mapstructure:"warmup_ttl_seconds" default:"60"`
	HighRateThreshold      int64   `mapstructure:"high_rate_threshold" default:"100"`
	StaleServeProbability  float64 `mapstructure:"stale_serve_probability" default:"0.2"`
	RefreshIntervalSeconds int     `mapstructure:"refresh_interval_seconds" default:"30"`
	AllowOverrides         bool    `mapstructure:"allow_overrides" default:"true"`
}

// LoadEnv reads .env (when present) and the process environment. Keys map
// from nested names, e.g. server.grpc_port is SERVER_GRPC_PORT.
func LoadEnv() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	bindValues(v, Config{}, "")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindValues registers every mapstructure key with its default tag so
// AutomaticEnv can resolve it during Unmarshal.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		v.SetDefault(key, field.Tag.Get("default"))
	}
}
