package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"

	"github.com/bilifav/bilifavdl/internal/bili"
	"github.com/bilifav/bilifavdl/internal/keyringconfig"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Manage your bilibili session cookie",
	Long: `The configure command allows you to set, show, validate, or delete the
bilibili session cookie stored in your OS keyring.

To set or update the cookie:
  bilifavdl configure

To check if a cookie is currently stored:
  bilifavdl configure show

To validate the stored cookie against the API:
  bilifavdl configure validate

To delete the stored cookie:
  bilifavdl configure delete`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Paste your bilibili cookie string: ")
		cookie, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read cookie: %w", err)
		}
		cookie = strings.TrimSpace(cookie)
		if err := keyringconfig.SetCookie(cookie); err != nil {
			return err
		}
		fmt.Println("Cookie successfully saved.")

		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Check if a session cookie is currently stored",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := keyring.Get(keyringconfig.Service, keyringconfig.User)
		switch err {
		case nil:
			fmt.Println("A session cookie is currently stored.")
		case keyring.ErrNotFound:
			fmt.Println("No session cookie is currently stored.")
		default:
			return fmt.Errorf("failed to check cookie status: %w", err)
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the stored cookie with the bilibili API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cookie, err := keyringconfig.GetCookie("")
		if err != nil {
			return err
		}

		client := bili.NewClient(cookie, logger)
		if err := client.ValidateCookie(cmd.Context()); err != nil {
			fmt.Println(err)
			if bili.IsKind(err, bili.ErrKindAuth) {
				fmt.Println("Please run 'bilifavdl configure' to update it.")
			}
			return nil
		}
		fmt.Println("Session cookie is valid.")
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the stored session cookie",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := keyringconfig.DeleteCookie(); err != nil {
			return err
		}
		fmt.Println("Cookie successfully deleted or was not found.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configureCmd)
	configureCmd.AddCommand(showCmd)
	configureCmd.AddCommand(validateCmd)
	configureCmd.AddCommand(deleteCmd)
}
