package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperengineering/smartshop/internal/auth"
	"github.com/hyperengineering/smartshop/internal/remote"
	"github.com/hyperengineering/smartshop/internal/types"
	"github.com/hyperengineering/smartshop/internal/validation"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var signupCmd = &cobra.Command{
	Use:   "signup <email>",
	Short: "Create an account and sign in",
	Long:  "Create an account on the document service. The password is read from stdin twice and both entries must match.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSignup,
}

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Sign in",
	Long:  "Sign in to the document service. The password is read from stdin.",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password <email>",
	Short: "Request a password reset",
	Args:  cobra.ExactArgs(1),
	RunE:  runResetPassword,
}

func runSignup(cmd *cobra.Command, args []string) error {
	in := bufio.NewReader(cmd.InOrStdin())
	password, err := readPassword(cmd, in, "Password: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword(cmd, in, "Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	creds := types.Credentials{Email: strings.TrimSpace(args[0]), Password: password}
	if errs := validation.ValidateCredentials(creds); len(errs) > 0 {
		return invalidInput(errs)
	}

	c, err := openSession()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if _, err := c.remote.SignUp(ctx, creds); err != nil {
		if errors.Is(err, remote.ErrConflict) {
			return fmt.Errorf("an account for %s already exists", creds.Email)
		}
		return fmt.Errorf("sign up: %w", err)
	}

	sess, err := signIn(ctx, c, creds)
	if err != nil {
		return err
	}
	return printSession(cmd.OutOrStdout(), "Signed up as", sess)
}

func runLogin(cmd *cobra.Command, args []string) error {
	password, err := readPassword(cmd, bufio.NewReader(cmd.InOrStdin()), "Password: ")
	if err != nil {
		return err
	}

	creds := types.Credentials{Email: strings.TrimSpace(args[0]), Password: password}
	if err := validation.ValidateRequired("email", creds.Email); err != nil {
		return invalidInput([]validation.ValidationError{*err})
	}

	c, err := openSession()
	if err != nil {
		return err
	}

	sess, err := signIn(cmd.Context(), c, creds)
	if err != nil {
		return err
	}
	return printSession(cmd.OutOrStdout(), "Signed in as", sess)
}

func runLogout(cmd *cobra.Command, args []string) error {
	c, err := openSession()
	if err != nil {
		return err
	}
	if err := c.state.SignOut(); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"signed_in": false})
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	c, err := openSession()
	if err != nil {
		return err
	}

	sess, err := c.state.Session()
	if err != nil {
		if errors.Is(err, auth.ErrNotSignedIn) {
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{"signed_in": false})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
			return nil
		}
		return err
	}
	return printSession(cmd.OutOrStdout(), "Signed in as", sess)
}

func runResetPassword(cmd *cobra.Command, args []string) error {
	email := strings.TrimSpace(args[0])
	if err := validation.ValidateRequired("email", email); err != nil {
		return invalidInput([]validation.ValidationError{*err})
	}

	c, err := openSession()
	if err != nil {
		return err
	}
	if err := c.remote.RequestPasswordReset(cmd.Context(), email); err != nil {
		return fmt.Errorf("request password reset: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"email": email, "requested": true})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Password reset requested for %s\n", email)
	return nil
}

// signIn logs in and persists the resulting session.
func signIn(ctx context.Context, c *client, creds types.Credentials) (*auth.Session, error) {
	tok, err := c.remote.Login(ctx, creds)
	if err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			return nil, errors.New("invalid email or password")
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	sess := auth.SessionFromToken(tok)
	if err := c.state.SignIn(sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func printSession(w io.Writer, prefix string, sess *auth.Session) error {
	if jsonOutput {
		return printJSON(w, map[string]any{
			"signed_in":  true,
			"email":      sess.Email,
			"user_id":    sess.UserID,
			"expires_at": sess.ExpiresAt,
		})
	}
	fmt.Fprintf(w, "%s %s (session expires %s)\n", prefix, sess.Email, sess.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}

// promptLine writes prompt to w and reads one line from in.
func promptLine(w io.Writer, in *bufio.Reader, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readPassword reads a password without echo when stdin is a terminal and
// falls back to a plain line read for pipes.
func readPassword(cmd *cobra.Command, in *bufio.Reader, prompt string) (string, error) {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return promptLine(cmd.ErrOrStderr(), in, prompt)
	}

	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
