package cmd

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"connector-sync/cmd/configprint"
	"connector-sync/cmd/resourcematcher"
	"connector-sync/cmd/serve"
	"connector-sync/cmd/sync"
	"connector-sync/cmd/version"
	"connector-sync/pkg/log"
)

var cfgFile string

const (
	CFG_FLAG_NAME = "config"
)

var RootCmd = &cobra.Command{
	Use:   "connector-sync",
	Short: "Connector Sync pulls data from marketing and finance platforms into the document store",
	Long: `Connector Sync keeps an organization's connected platforms (HubSpot, Google Ads,
Google Analytics, SEO crawler, Xero) mirrored into the document store. It refreshes
OAuth tokens, pages through every resource and upserts the records in batches.`,
	SilenceUsage: true,
}

func Execute() {
	err := RootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func SetVersionInfo(v, c, d, b string) {
	version.SetVersionInfo(v, c, d, b)
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVarP(&cfgFile, CFG_FLAG_NAME, "c", "", "path to config file")
	_ = viper.BindPFlag(CFG_FLAG_NAME, RootCmd.PersistentFlags().Lookup(CFG_FLAG_NAME))

	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("connector_sync")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	RootCmd.AddCommand(sync.SyncCmd)
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(configprint.ConfigPrintCmd)
	RootCmd.AddCommand(resourcematcher.ResourceMatcherCmd)
	RootCmd.AddCommand(version.VersionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")                     // For running from project root
		viper.AddConfigPath("/etc/connector-sync/")  // For production
		viper.AddConfigPath("$HOME/.connector-sync") // For user-specific config
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Logger.Error().Err(err).Msg("Failed to read config file")
			os.Exit(1)
		}
		log.Logger.Debug().Msg("No config file found, relying on environment")
	}
}
