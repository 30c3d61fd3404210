package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/opcuad/cmd/opcuad/cmdutil"
	"github.com/marmos91/opcuad/internal/cli/output"
	"github.com/marmos91/opcuad/internal/cli/prompt"
	"github.com/marmos91/opcuad/pkg/config"
	"github.com/marmos91/opcuad/pkg/identity"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User and token helpers",
	Long: `Helpers for the identity section of the configuration.

Users are declared in the configuration file with a bcrypt password hash.
Admin tokens for the diagnostics API are JWTs signed with the issued
token secret.`,
}

var (
	hashPasswordStdin bool
	hashRoles         []string
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <name>",
	Short: "Hash a password and print a users entry",
	Long: `Prompt for a password and print an identity.users entry with its
bcrypt hash, ready to paste into the configuration file.

Examples:
  opcuad user hash-password operator --role operator
  echo "$PASSWORD" | opcuad user hash-password operator --password-stdin`,
	Args: cobra.ExactArgs(1),
	RunE: runHashPassword,
}

var (
	tokenRoles []string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Sign an issued identity token",
	Long: `Sign a JWT with identity.issued.secret. The token activates sessions
through an IssuedIdentityToken and, when it carries the admin role,
authorizes "opcuad sessions close".

Examples:
  export OPCUAD_TOKEN=$(opcuad user token ops --role admin)
  opcuad user token line-7 --ttl 24h`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	hashPasswordCmd.Flags().BoolVar(&hashPasswordStdin, "password-stdin", false, "Read the password from stdin")
	hashPasswordCmd.Flags().StringSliceVar(&hashRoles, "role", nil, "Role of the user (repeatable)")

	tokenCmd.Flags().StringSliceVar(&tokenRoles, "role", nil, "Role claim (repeatable)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")

	userCmd.AddCommand(hashPasswordCmd)
	userCmd.AddCommand(tokenCmd)
}

// readPassword reads the first line of r.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	var password string
	var err error
	if hashPasswordStdin {
		if password, err = readPassword(cmd.InOrStdin()); err == nil {
			err = identity.ValidatePassword(password)
		}
	} else {
		password, err = prompt.NewPassword(identity.ValidatePassword)
	}
	if err != nil {
		return cmdutil.HandleAbort(w, err)
	}

	hash, err := identity.HashPassword(password)
	if err != nil {
		return err
	}

	entry := struct {
		Identity struct {
			Users []identity.User `yaml:"users"`
		} `yaml:"identity"`
	}{}
	entry.Identity.Users = []identity.User{{
		Name:         args[0],
		PasswordHash: hash,
		Enabled:      true,
		Roles:        hashRoles,
	}}
	return output.PrintYAML(w, entry)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(cmdutil.Flags.ConfigFile)
	if err != nil {
		return err
	}
	if !cfg.Identity.Issued.Enabled {
		return errors.New("identity.issued is disabled; enable it and set a secret first")
	}

	tokens, err := identity.NewTokenValidator(cfg.Identity.Issued)
	if err != nil {
		return err
	}
	token, err := tokens.Sign(args[0], tokenRoles, time.Now(), tokenTTL)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
