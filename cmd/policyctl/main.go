package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kitloop-backend/internal/config"
	"kitloop-backend/internal/metadata"
)

var configFlag string

// errDenied is returned by RunE handlers when the decision is negative, so
// scripts can branch on the exit code.
var errDenied = errors.New("denied")

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "policyctl",
		Short: "Inspect Kitloop permission and upload admission decisions",
		Long: `Policyctl evaluates the same permission gate and upload admission rules the
server uses, without a running server.

  policyctl can --role operator --action delete --resource inventory
  policyctl matrix --role manager --unverified
  policyctl validate-upload --use-case gear_image --mime image/png --size 1048576 \
      --path provider123/gear/tent.png --prefix provider123/gear/
  policyctl message file_too_large --lang cs`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	}

	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: app.yaml in . or ../..)")

	rootCmd.AddCommand(
		newCanCmd(),
		newMatrixCmd(),
		newValidateUploadCmd(),
		newMessageCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errDenied) {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}

func loadConfig() (*config.Config, error) {
	if configFlag != "" {
		return config.LoadFile(configFlag)
	}
	return config.Load()
}

func loadRegistry() (*metadata.Registry, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	reg := metadata.NewRegistry()
	if err := metadata.LoadUploadRules(cfg.Uploads, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// userFromFlags builds a UserContext from --role and --unverified. The
// verification flag is left absent unless --unverified is given.
func userFromFlags(role string, unverified bool) (*metadata.UserContext, error) {
	r, err := metadata.ParseRole(role)
	if err != nil {
		return nil, err
	}
	user := &metadata.UserContext{ID: "cli", Role: r}
	if unverified {
		verified := false
		user.IsVerified = &verified
	}
	return user, nil
}
