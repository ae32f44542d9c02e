// Package configutil resolves settings with flag-over-config
// precedence: an explicitly set cobra flag wins, otherwise the bound
// viper key (config file or environment) is used.
package configutil

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func FlagOrViperString(cmd *cobra.Command, flagName, viperKey string) string {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err == nil {
			return value
		}
	}
	return viper.GetString(viperKey)
}

func FlagOrViperBool(cmd *cobra.Command, flagName, viperKey string) bool {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetBool(flagName)
		if err == nil {
			return value
		}
	}
	return viper.GetBool(viperKey)
}

func FlagOrViperInt(cmd *cobra.Command, flagName, viperKey string) int {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetInt(flagName)
		if err == nil {
			return value
		}
	}
	return viper.GetInt(viperKey)
}

func FlagOrViperDuration(cmd *cobra.Command, flagName, viperKey string) time.Duration {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetDuration(flagName)
		if err == nil {
			return value
		}
	}
	return viper.GetDuration(viperKey)
}
