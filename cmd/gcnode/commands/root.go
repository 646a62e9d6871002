package commands

import (
	"github.com/spf13/cobra"

	"github.com/ZentaChain/zentalk-groupchat/pkg/config"
	"github.com/ZentaChain/zentalk-groupchat/pkg/identity"
)

var (
	envFile string
	cfg     *config.Config
)

// Execute runs the root command
func Execute() error {
	return rootCmd().Execute()
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gcnode",
		Short:        "Decentralised group chat node",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(envFile)
			if err != nil {
				return err
			}
			cfg = loaded
			return applyFlags(cmd)
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env", ".env", "settings file")
	root.PersistentFlags().String("keyring-dir", "", "store identities in an encrypted file keyring in this directory")
	root.PersistentFlags().String("key", "", "identity name")

	root.AddCommand(runCmd(), genkeyCmd(), pubkeyCmd())
	return root
}

// applyFlags lets explicitly set flags override the loaded settings
func applyFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()

	if flags.Changed("keyring-dir") {
		cfg.KeyringDir, _ = flags.GetString("keyring-dir")
	}
	if flags.Changed("key") {
		cfg.KeyName, _ = flags.GetString("key")
	}
	if flags.Lookup("listen") != nil && flags.Changed("listen") {
		cfg.ListenAddr, _ = flags.GetString("listen")
	}
	if flags.Lookup("api-port") != nil && flags.Changed("api-port") {
		cfg.APIPort, _ = flags.GetInt("api-port")
	}
	if flags.Lookup("dht-port") != nil && flags.Changed("dht-port") {
		cfg.DHTPort, _ = flags.GetInt("dht-port")
	}
	if flags.Lookup("bootstrap") != nil && flags.Changed("bootstrap") {
		cfg.BootstrapPeers, _ = flags.GetStringSlice("bootstrap")
	}
	if flags.Lookup("nick") != nil && flags.Changed("nick") {
		cfg.Nick, _ = flags.GetString("nick")
	}
	if flags.Lookup("data") != nil && flags.Changed("data") {
		cfg.DataDir, _ = flags.GetString("data")
	}
	return cfg.Validate()
}

func openIdentities() (*identity.Store, error) {
	return identity.Open(identity.Config{Dir: cfg.KeyringDir, Password: cfg.KeyringPassword})
}
