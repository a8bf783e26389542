package server

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// LoadConfig layers an optional YAML file and FACILITYBOOK_* environment
// variables over Defaults(). configPath may be empty, in which case only
// env vars and defaults apply. CLI flags are applied by the caller after
// this returns, since cobra flags outrank everything else (§6).
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FACILITYBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Defaults()
	v.SetDefault("port", cfg.Port)
	v.SetDefault("semantics", string(cfg.Semantics))
	v.SetDefault("request_loss", cfg.RequestLoss)
	v.SetDefault("reply_loss", cfg.ReplyLoss)
	v.SetDefault("facilities", cfg.Facilities)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", configPath, err)
		}
	}

	var out Config
	if err := v.Unmarshal(&out, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return out, nil
}
