package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Inverter  InverterConfig  `mapstructure:"inverter"`
	Collector CollectorConfig `mapstructure:"collector"`
	PVOutput  PVOutputConfig  `mapstructure:"pvoutput"`
	State     StateConfig     `mapstructure:"state"`
	API       APIConfig       `mapstructure:"api"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Debug     bool            `mapstructure:"debug"`
}

type InverterConfig struct {
	Host    string        `mapstructure:"host"`
	Port    int           `mapstructure:"port"`
	UnitID  uint8         `mapstructure:"unit_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CollectorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Enabled  bool          `mapstructure:"enabled"`
}

type PVOutputConfig struct {
	APIKey   string `mapstructure:"api_key"`
	SystemID string `mapstructure:"system_id"`
	DryRun   bool   `mapstructure:"dry_run"`
}

type StateConfig struct {
	Dir string `mapstructure:"dir"`
}

type APIConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type DatabaseConfig struct {
	Path    string `mapstructure:"path"`
	Enabled bool   `mapstructure:"enabled"`
}

// MinPollInterval is the floor applied to collector.interval. The VSN300
// data logger card misbehaves when polled faster than this.
const MinPollInterval = 30 * time.Second

func Load(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/vsn300-pvoutput")
	}

	viper.SetDefault("inverter.host", "192.168.1.220")
	viper.SetDefault("inverter.port", 502)
	viper.SetDefault("inverter.unit_id", 2)
	viper.SetDefault("inverter.timeout", "4s")
	viper.SetDefault("collector.interval", "300s")
	viper.SetDefault("collector.enabled", true)
	viper.SetDefault("pvoutput.api_key", "")
	viper.SetDefault("pvoutput.system_id", "")
	viper.SetDefault("pvoutput.dry_run", false)
	viper.SetDefault("state.dir", "/data")
	viper.SetDefault("api.port", 8080)
	viper.SetDefault("api.enabled", true)
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic_prefix", "vsn300")
	viper.SetDefault("mqtt.client_id", "vsn300-pvoutput")
	viper.SetDefault("database.path", "./readings.db")
	viper.SetDefault("database.enabled", true)
	viper.SetDefault("debug", false)

	viper.SetEnvPrefix("vsn300")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Collector.Interval < MinPollInterval {
		cfg.Collector.Interval = MinPollInterval
	}

	return &cfg, nil
}
