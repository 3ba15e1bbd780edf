// Command accountsctl manages the local account store: add, list, remove,
// and verify OAuth accounts against the liveness probes. Mirrors the
// teacher's cmd/accounts CLI, rebuilt on a cobra command tree.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/antigravity-pool/accountpool/internal/account"
	"github.com/antigravity-pool/accountpool/internal/account/store"
	"github.com/antigravity-pool/accountpool/internal/config"
	"github.com/antigravity-pool/accountpool/internal/utils"
	"github.com/antigravity-pool/accountpool/pkg/cloudcode"
)

var cfg *config.Config

func main() {
	cfg = config.DefaultConfig()
	if err := cfg.Load(os.Getenv("ACCOUNTPOOL_CONFIG")); err != nil {
		utils.Warn("failed to load config: %v", err)
	}

	root := &cobra.Command{
		Use:   "accountsctl",
		Short: "Manage the Antigravity account pool's local credential store",
	}

	root.AddCommand(addCmd(), listCmd(), removeCmd(), verifyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadStorage() (*store.Store, *account.AccountStorage) {
	s := store.New(nil)
	storage := s.Load(cfg.AccountsFilePath())
	if storage == nil {
		storage = &account.AccountStorage{Version: account.StorageVersion, Accounts: []*account.Account{}}
	}
	return s, storage
}

func addCmd() *cobra.Command {
	var refreshToken, projectID, email string
	var tier string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an account to the pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			if refreshToken == "" {
				return fmt.Errorf("--refresh-token is required")
			}
			s, storage := loadStorage()
			if len(storage.Accounts) >= 10 {
				return fmt.Errorf("pool already at the 10-account cap")
			}
			acc := &account.Account{
				RefreshToken: refreshToken,
				ProjectID:    projectID,
				Email:        email,
				Tier:         account.Tier(tier),
			}
			storage.Accounts = append(storage.Accounts, acc)
			if err := s.Save(cfg.AccountsFilePath(), storage); err != nil {
				return err
			}
			utils.Success("added account %s", utils.MaskEmail(email))
			return nil
		},
	}

	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "OAuth refresh token (required)")
	cmd.Flags().StringVar(&projectID, "project-id", "", "Cloud project ID")
	cmd.Flags().StringVar(&email, "email", "", "display email")
	cmd.Flags().StringVar(&tier, "tier", "free", "account tier: free or paid")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts in the pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, storage := loadStorage()
			if len(storage.Accounts) == 0 {
				fmt.Println("no accounts configured")
				return nil
			}
			for i, acc := range storage.Accounts {
				access := "unknown"
				switch acc.AccessState() {
				case account.AccessValid:
					access = "valid"
				case account.AccessInvalid:
					access = "invalid"
				}
				fmt.Printf("[%d] %s tier=%s access=%s lastUsed=%s\n",
					i, utils.MaskEmail(acc.Email), acc.Tier, access, utils.FormatDuration(acc.LastUsed))
			}
			return nil
		},
	}
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [index]",
		Short: "Remove an account by index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var index int
			if _, err := fmt.Sscanf(args[0], "%d", &index); err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			s, storage := loadStorage()
			if index < 0 || index >= len(storage.Accounts) {
				return fmt.Errorf("index %d out of range", index)
			}
			storage.Accounts = append(storage.Accounts[:index], storage.Accounts[index+1:]...)
			if storage.ActiveIndex >= len(storage.Accounts) && len(storage.Accounts) > 0 {
				storage.ActiveIndex = len(storage.Accounts) - 1
			}
			if err := s.Save(cfg.AccountsFilePath(), storage); err != nil {
				return err
			}
			utils.Success("removed account at index %d", index)
			return nil
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Probe every account's liveness via the Cloud Code API",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, storage := loadStorage()
			prober := cloudcode.New(nil)
			ctx := context.Background()
			for i, acc := range storage.Accounts {
				if acc.Access == "" {
					fmt.Printf("[%d] %s: no access token, skipping\n", i, utils.MaskEmail(acc.Email))
					continue
				}
				status := prober.ProbeGemini(ctx, acc.Access, acc.ProjectID)
				fmt.Printf("[%d] %s: %s\n", i, utils.MaskEmail(acc.Email), status)
			}
			return nil
		},
	}
}
