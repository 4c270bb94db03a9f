package cmd

import (
	"fmt"

	"github.com/jon4hz/clubhub/internal/config"
	"github.com/jon4hz/clubhub/internal/database"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var dbStatsCmd = &cobra.Command{
	Use:   "db-stats",
	Short: "Show database statistics",
	Long:  `Display the number of members, products, events, manuals and content sections.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(rootCmdPersistentFlags.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		db, err := database.New(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close() //nolint: errcheck

		ctx := cmd.Context()
		users, err := db.GetAllUsers(ctx)
		if err != nil {
			return fmt.Errorf("failed to get users: %w", err)
		}
		products, err := db.GetProducts(ctx)
		if err != nil {
			return fmt.Errorf("failed to get products: %w", err)
		}
		events, err := db.GetEvents(ctx)
		if err != nil {
			return fmt.Errorf("failed to get events: %w", err)
		}
		manuals, err := db.GetManuals(ctx)
		if err != nil {
			return fmt.Errorf("failed to get manuals: %w", err)
		}
		sections, err := db.GetSections(ctx)
		if err != nil {
			return fmt.Errorf("failed to get sections: %w", err)
		}

		fmt.Println("Database Statistics:")
		fmt.Printf("Members: %d\n", len(users))
		fmt.Printf("  Active: %d\n", lo.CountBy(users, func(u database.User) bool { return u.IsActive }))
		fmt.Printf("  Administrators: %d\n", lo.CountBy(users, func(u database.User) bool { return u.Role == database.RoleAdmin }))
		fmt.Printf("  With email notifications: %d\n", lo.CountBy(users, func(u database.User) bool { return u.EmailNotifications }))
		fmt.Printf("Products: %d\n", len(products))
		fmt.Printf("Events: %d\n", len(events))
		fmt.Printf("Manuals: %d\n", len(manuals))
		fmt.Printf("Sections: %d\n", len(sections))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbStatsCmd)
}
