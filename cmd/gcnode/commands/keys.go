package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZentaChain/zentalk-groupchat/pkg/crypto"
)

func genkeyCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Generate and store a new identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openIdentities()
			if err != nil {
				return err
			}
			if _, err := store.Load(cfg.KeyName); err == nil && !force {
				return fmt.Errorf("identity %q already exists, use --force to replace it", cfg.KeyName)
			}

			kp, err := crypto.GenerateExtKeyPair()
			if err != nil {
				return err
			}
			if err := store.Save(cfg.KeyName, kp); err != nil {
				return err
			}

			fmt.Printf("Identity %q: %s\n", cfg.KeyName, kp.Public)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "replace an existing identity")
	return cmd
}

func pubkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pubkey",
		Short: "Print the public key of the identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openIdentities()
			if err != nil {
				return err
			}
			kp, err := store.Load(cfg.KeyName)
			if err != nil {
				return fmt.Errorf("identity %q: %w", cfg.KeyName, err)
			}

			fmt.Println(kp.Public)
			return nil
		},
	}
}
