package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
	viper.SetDefault("trace", false)

	viper.SetDefault("state_dir", "state")

	viper.SetDefault("bridge.url", "")
	viper.SetDefault("bridge.token", "")
	viper.SetDefault("bridge.roster_timeout", 10*time.Second)

	viper.SetDefault("command.prefix", ".")

	viper.SetDefault("serve.max_concurrency", 3)
	viper.SetDefault("serve.handle_timeout", 30*time.Second)
	viper.SetDefault("serve.health_listen", "")

	viper.SetDefault("audit.enabled", true)
	viper.SetDefault("audit.jsonl_path", "")
}
