package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igdmbot/pkg/auth"
	"igdmbot/pkg/session"
	"igdmbot/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Instagram credentials and the cached session",
	Long: `Manage the secrets the bot logs in with.

Secrets can be supplied in the configuration file, through IGDMBOT_* environment
variables, or stored in the system keychain with 'igdmbot auth set'. Values in
the configuration or environment take precedence over the keychain.

Never share your credentials or config files!`,
}

// authSetCmd represents the auth set command
var authSetCmd = &cobra.Command{
	Use:   "set <field>",
	Short: "Store a secret in the system keychain",
	Long: `Store one secret for the configured account in the system keychain.

Fields:
  session_id     value of the 'sessionid' browser cookie (web gateway)
  password       account password (web gateway)
  backup_code    a two-factor backup code (web gateway)
  access_token   long-lived Graph API token (graph gateway)

The value is read without echo.`,
	Example: `  # Store a browser session id
  igdmbot auth set session_id

  # Store a password for a specific account
  igdmbot auth set password --username myshop`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: auth.Fields,
	RunE:      runAuthSet,
}

// authClearCmd represents the auth clear command
var authClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove stored secrets and the cached session",
	Args:  cobra.NoArgs,
	RunE:  runAuthClear,
}

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which secrets are configured and the cached session",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

// authCheckCmd represents the auth check command
var authCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Log in (or verify the cached session) and report the result",
	Args:  cobra.NoArgs,
	RunE:  runAuthCheck,
}

var clearYes bool

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authClearCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authCheckCmd)

	authClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	field := args[0]
	if !slices.Contains(auth.Fields, field) {
		return fmt.Errorf("unknown field %q (expected one of %s)", field, strings.Join(auth.Fields, ", "))
	}

	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	store, err := auth.NewKeyringStore()
	if err != nil {
		return fmt.Errorf("%w: set IGDMBOT_INSTAGRAM_%s instead", err, strings.ToUpper(field))
	}

	account := cfg.Instagram.Username
	if account == "" && field != auth.FieldAccessToken {
		fmt.Print("📱 Instagram username: ")
		input, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
		account = strings.TrimSpace(input)
		if account == "" {
			return errors.New("username is required")
		}
	}

	if field == auth.FieldSessionID {
		auth.PrintSessionIDInstructions(os.Stdout)
	}

	fmt.Printf("🔐 %s (hidden): ", field)
	value, err := readPassword()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", field, err)
	}
	if value == "" {
		return fmt.Errorf("%s must not be empty", field)
	}

	if err := store.Set(account, field, value); err != nil {
		return err
	}

	owner := account
	if owner == "" {
		owner = "default account"
	}
	ui.PrintSuccess(fmt.Sprintf("Stored %s for %s in the system keychain", field, owner))
	if account != "" && cfg.Instagram.Username == "" {
		fmt.Println("\nSet the account in your configuration so the bot finds it:")
		fmt.Printf("  export IGDMBOT_INSTAGRAM_USERNAME=%s\n", account)
	}
	return nil
}

func runAuthClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	if !clearYes {
		fmt.Printf("Remove stored secrets and the cached session for '%s'? (y/N): ", cfg.Instagram.Username)
		input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	var errs []error
	if store, err := auth.NewKeyringStore(); err == nil {
		if err := auth.DeleteAll(store, cfg.Instagram.Username); err != nil {
			errs = append(errs, err)
		}
	} else {
		ui.PrintWarning("System keychain unavailable, skipping stored secrets")
	}

	sessions, err := session.NewFileStore(cfg.Storage.SessionFile)
	if err != nil {
		errs = append(errs, err)
	} else if err := sessions.Clear(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	ui.PrintSuccess("Credentials cleared")
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, cfg, err := openApp(ctx, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	cred := a.Authenticator().Credential().Sanitized()
	values := map[string]string{
		auth.FieldPassword:    cred.Password,
		auth.FieldBackupCode:  cred.BackupCode,
		auth.FieldSessionID:   cred.SessionID,
		auth.FieldAccessToken: cred.AccessToken,
	}
	rows := [][]string{
		{"username", cred.Username},
		{"credential", string(cred.Kind)},
		{"gateway", a.Mode()},
	}
	for _, f := range auth.Fields {
		v := values[f]
		if v == "" {
			v = "-"
		}
		rows = append(rows, []string{f, v})
	}

	sess, err := a.Sessions().Load()
	switch {
	case errors.Is(err, session.ErrNotFound):
		rows = append(rows, []string{"cached session", "none"})
	case err != nil:
		rows = append(rows, []string{"cached session", "unreadable: " + err.Error()})
	default:
		rows = append(rows,
			[]string{"cached session", sess.Kind + " for " + sess.Username},
			[]string{"last verified", sess.LastVerified.Local().Format("2006-01-02 15:04:05")},
		)
	}
	rows = append(rows, []string{"session file", cfg.Storage.SessionFile})

	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Auth", ""}, rows, nil))
	return nil
}

func runAuthCheck(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, _, err := openApp(ctx, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Authenticator().Credential().Validate(); err != nil && !hasCachedSession(a.Sessions()) {
		return err
	}

	r := a.Authenticate(ctx)
	if !r.OK() {
		// the failure hook has already printed the remediation
		return fmt.Errorf("authentication failed (%s)", r.Reason)
	}
	st := a.Authenticator().Status()
	ui.PrintSuccess(fmt.Sprintf("Authenticated as %s via %s", st.Username, st.Method))
	return nil
}

func hasCachedSession(s session.Store) bool {
	_, err := s.Load()
	return err == nil
}

// readPassword reads a secret from stdin without echoing
func readPassword() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(password)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
