package cmd

import (
	"errors"
	"fmt"

	"github.com/jon4hz/clubhub/internal/config"
	"github.com/jon4hz/clubhub/internal/database"
	"github.com/jon4hz/clubhub/internal/recordstore/local"
	"github.com/spf13/cobra"
)

var seedCmdFlags struct {
	Username string
	Email    string
	Password string
}

var seedCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create an administrator account",
	Long:  `Create an active administrator. The seed section of the config file is used for flags that are not set.`,
	Example: `clubhub seed-admin --username admin --email admin@club1500.com --password 'S3cret!'
CLUBHUB_SEED_PASSWORD='S3cret!' clubhub seed-admin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(rootCmdPersistentFlags.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		seed := config.SeedConfig{}
		if cfg.Seed != nil {
			seed = *cfg.Seed
		}
		if seedCmdFlags.Username != "" {
			seed.Username = seedCmdFlags.Username
		}
		if seedCmdFlags.Email != "" {
			seed.Email = seedCmdFlags.Email
		}
		if seedCmdFlags.Password != "" {
			seed.Password = seedCmdFlags.Password
		}
		if seed.Username == "" || seed.Email == "" || seed.Password == "" {
			return errors.New("username, email and password are required")
		}

		db, err := database.New(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close() //nolint: errcheck

		created, err := local.SeedAdmin(cmd.Context(), db, seed.Username, seed.Email, seed.Password)
		if err != nil {
			return err
		}
		if !created {
			fmt.Printf("An account named %s or using %s already exists.\n", seed.Username, seed.Email)
			return nil
		}
		fmt.Printf("Administrator %s created.\n", seed.Username)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedCmdFlags.Username, "username", "", "Username of the administrator")
	seedCmd.Flags().StringVar(&seedCmdFlags.Email, "email", "", "Email of the administrator")
	seedCmd.Flags().StringVar(&seedCmdFlags.Password, "password", "", "Password of the administrator")

	rootCmd.AddCommand(seedCmd)
}
