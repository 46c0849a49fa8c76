// Package config loads the service configuration from a YAML file with
// environment overrides under the TIDELINE_ prefix.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Records  RecordsConfig  `mapstructure:"records"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Queues   QueuesConfig   `mapstructure:"queues"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Runner   RunnerConfig   `mapstructure:"runner"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Accounts AccountsConfig `mapstructure:"accounts"`
	Server   ServerConfig   `mapstructure:"server"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// RecordsConfig locates the job record table.
type RecordsConfig struct {
	Table     string `mapstructure:"table"`
	UserIndex string `mapstructure:"user_index"`
}

// StorageConfig locates hot-storage artifact destinations.
type StorageConfig struct {
	ResultsBucket string `mapstructure:"results_bucket"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

// VaultConfig locates the cold-storage vault and its retrieval callback
// topic.
type VaultConfig struct {
	Name     string `mapstructure:"name"`
	TopicARN string `mapstructure:"topic_arn"`
}

// QueuesConfig names the per-worker queue URLs and the shared receive
// bounds.
type QueuesConfig struct {
	Submissions string        `mapstructure:"submissions"`
	Archive     string        `mapstructure:"archive"`
	Upgrades    string        `mapstructure:"upgrades"`
	Retrievals  string        `mapstructure:"retrievals"`
	WaitTime    time.Duration `mapstructure:"wait_time"`
	MaxMessages int           `mapstructure:"max_messages"`
}

type WorkersConfig struct {
	Count          int     `mapstructure:"count"`
	PollsPerSecond float64 `mapstructure:"polls_per_second"`
}

// RunnerConfig locates the analysis binary and its scratch space.
type RunnerConfig struct {
	Command     string   `mapstructure:"command"`
	Args        []string `mapstructure:"args"`
	ScratchRoot string   `mapstructure:"scratch_root"`
}

type WorkflowConfig struct {
	StateMachineARN string `mapstructure:"state_machine_arn"`
}

type NotifyConfig struct {
	TopicARN string `mapstructure:"topic_arn"`
}

type AccountsConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ServerConfig sizes the hook server.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	HookPath        string        `mapstructure:"hook_path"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration from path, or from tideline.yaml on the search
// path when path is empty. A missing default file is not an error: defaults
// and TIDELINE_ environment overrides still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tideline")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tideline")
	}

	setDefaults(v)

	v.SetEnvPrefix("TIDELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("records.table", "jobs")
	v.SetDefault("records.user_index", "user_id_index")

	v.SetDefault("storage.results_bucket", "")
	v.SetDefault("storage.key_prefix", "runs")

	v.SetDefault("vault.name", "")
	v.SetDefault("vault.topic_arn", "")

	v.SetDefault("queues.submissions", "")
	v.SetDefault("queues.archive", "")
	v.SetDefault("queues.upgrades", "")
	v.SetDefault("queues.retrievals", "")
	v.SetDefault("queues.wait_time", 15*time.Second)
	v.SetDefault("queues.max_messages", 10)

	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.polls_per_second", 0)

	v.SetDefault("runner.command", "")
	v.SetDefault("runner.args", []string{})
	v.SetDefault("runner.scratch_root", "/var/tmp/tideline")

	v.SetDefault("workflow.state_machine_arn", "")
	v.SetDefault("notify.topic_arn", "")
	v.SetDefault("accounts.dsn", "")

	v.SetDefault("server.addr", ":4567")
	v.SetDefault("server.hook_path", "/hooks/retrievals")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
}
