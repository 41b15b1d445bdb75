package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/razorpay-reconciliation/internal/auth"
	"github.com/frahmantamala/razorpay-reconciliation/internal/user"
)

var (
	seedEmail       string
	seedName        string
	seedPermissions []string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the permission catalogue and an admin operator",
	Long: `Upserts the admin permission catalogue and creates the operator if the email is unused.
The password is read from SEED_ADMIN_PASSWORD.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		deps, err := initializeDependencies(cfg)
		if err != nil {
			log.Fatalf("failed to init dependencies: %v", err)
		}
		defer deps.Close()

		password := os.Getenv("SEED_ADMIN_PASSWORD")
		if password == "" {
			log.Fatal("SEED_ADMIN_PASSWORD is required")
		}

		u, created, err := deps.Users.EnsureAdmin(context.Background(), user.CreateUserDTO{
			Email:       seedEmail,
			Name:        seedName,
			Password:    password,
			Permissions: seedPermissions,
		}, auth.AllPermissions)
		if err != nil {
			log.Fatalf("failed to seed admin user: %v", err)
		}

		if created {
			fmt.Println("Seeded admin user:", u.Email)
		} else {
			fmt.Println("admin user already exists; ensured permissions:", u.Email)
		}
		fmt.Println("Permissions:", strings.Join(u.Permissions, ", "))
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedEmail, "email", "admin@example.com", "operator email")
	seedCmd.Flags().StringVar(&seedName, "name", "Administrator", "operator display name")
	seedCmd.Flags().StringSliceVar(&seedPermissions, "permissions", []string{auth.PermissionAdmin}, "permissions to grant")
}
