package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"xscraper/pkg/auth"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage X credentials",
	Long: `Manage stored X auth tokens securely.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variable (XSCRAPER_AUTH_TOKEN, read-only)

To get your auth token:
1. Log into x.com in your browser
2. Open Developer Tools (F12)
3. Go to Application/Storage > Cookies
4. Copy the value of the auth_token cookie

Never share your token or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store an X auth token securely",
	Long: `Store an X auth token in the system keychain or encrypted file.

The profile name defaults to "default". Store several profiles to
switch between accounts with the --profile flag on fetch and batch.`,
	Example: `  # Store the default profile
  xscraper auth login

  # Store a named profile
  xscraper auth login work`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// listCmd represents the auth list command
var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credential profiles",
	RunE:  runAuthList,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:     "logout [profile]",
	Aliases: []string{"remove"},
	Short:   "Remove a stored credential profile",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runLogout,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(logoutCmd)
}

func profileArg(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0])
	}
	return auth.DefaultProfile
}

func runLogin(cmd *cobra.Command, args []string) error {
	name := profileArg(args)

	token, err := auth.PromptToken("Auth token: ")
	if err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token must not be empty")
	}

	mgr, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}
	if err := mgr.Store(&auth.Profile{Name: name, AuthToken: strings.TrimSpace(token)}); err != nil {
		return fmt.Errorf("storing credentials: %w", err)
	}

	fmt.Printf("Stored profile %q (%s)\n", name, auth.MaskToken(token))
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	mgr, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}
	profiles, err := mgr.List()
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Println("No stored profiles. Run 'xscraper auth login' to add one.")
		return nil
	}

	for _, p := range profiles {
		fmt.Printf("%-20s %s  (modified %s)\n",
			p.Name, auth.MaskToken(p.AuthToken), p.LastModified.Format("2006-01-02 15:04"))
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	name := profileArg(args)

	mgr, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}
	if err := mgr.Delete(name); err != nil {
		return err
	}
	fmt.Printf("Removed profile %q\n", name)
	return nil
}
