package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/clubhub/internal/recordstore"
	"github.com/jon4hz/clubhub/internal/recordstore/remote"
	"github.com/jon4hz/clubhub/internal/session"
	"github.com/mergestat/timediff"
	"github.com/spf13/cobra"
)

var usersCmdFlags struct {
	Server    string
	TokenFile string
	Username  string
	Password  string
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage the members of a running clubhub server",
	Long:  `Log in to a clubhub server and manage its members. The auth token is kept in the token file between calls.`,
	Example: `clubhub users login --username admin --password 123
clubhub users list
clubhub users promote <user-id>
clubhub users toggle <user-id>`,
}

var usersLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and remember the session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		core, err := remoteSession(cmd.Context())
		if err != nil {
			return err
		}
		if err := core.Login(cmd.Context(), usersCmdFlags.Username, usersCmdFlags.Password); err != nil {
			return err
		}
		user, _ := core.CurrentUser()
		fmt.Printf("Logged in as %s (%s)\n", user.Username, user.Role)
		return nil
	},
}

var usersLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the remembered session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		core, err := remoteSession(cmd.Context())
		if err != nil {
			return err
		}
		return core.Logout(cmd.Context())
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all members",
	RunE: func(cmd *cobra.Command, _ []string) error {
		core, err := adminSession(cmd.Context())
		if err != nil {
			return err
		}
		if err := core.RefreshUsers(cmd.Context()); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tROLE\tACTIVE\tLAST LOGIN") //nolint:errcheck
		for _, u := range core.Users() {
			lastLogin := "never"
			if u.LastLogin != nil {
				lastLogin = timediff.TimeDiff(*u.LastLogin)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", u.ID, u.Username, u.Email, u.Role, u.IsActive, lastLogin) //nolint:errcheck
		}
		return w.Flush()
	},
}

func roleCommand(use, short string, role recordstore.Role) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := adminSession(cmd.Context())
			if err != nil {
				return err
			}
			if err := core.UpdateUserRole(cmd.Context(), args[0], role); err != nil {
				return err
			}
			fmt.Printf("User %s is now %s\n", args[0], role)
			return nil
		},
	}
}

var usersToggleCmd = &cobra.Command{
	Use:   "toggle <user-id>",
	Short: "Activate an inactive member or deactivate an active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		core, err := adminSession(cmd.Context())
		if err != nil {
			return err
		}
		if err := core.ToggleUserStatus(cmd.Context(), args[0]); err != nil {
			return err
		}
		for _, u := range core.Users() {
			if u.ID == args[0] {
				fmt.Printf("User %s active: %t\n", u.Username, u.IsActive)
			}
		}
		return nil
	},
}

func init() {
	usersCmd.PersistentFlags().StringVar(&usersCmdFlags.Server, "server", "http://localhost:8090", "URL of the clubhub server")
	usersCmd.PersistentFlags().StringVar(&usersCmdFlags.TokenFile, "token-file", recordstore.DefaultTokenPath(), "File holding the auth token")
	usersLoginCmd.Flags().StringVarP(&usersCmdFlags.Username, "username", "u", "", "Username or email")
	usersLoginCmd.Flags().StringVarP(&usersCmdFlags.Password, "password", "p", "", "Password")

	usersCmd.AddCommand(
		usersLoginCmd,
		usersLogoutCmd,
		usersListCmd,
		roleCommand("promote", "Make a member an administrator", recordstore.RoleAdmin),
		roleCommand("demote", "Make an administrator a regular member", recordstore.RoleUser),
		usersToggleCmd,
	)
	rootCmd.AddCommand(usersCmd)
}

func remoteSession(ctx context.Context) (*session.Core, error) {
	client := remote.New(usersCmdFlags.Server, recordstore.NewFileTokenStore(usersCmdFlags.TokenFile))
	core := session.New(client, session.WithLogger(log.Default().WithPrefix("session")))
	if err := core.Init(ctx); err != nil {
		return nil, err
	}
	return core, nil
}

// adminSession restores the remembered session and requires it to be an administrator.
func adminSession(ctx context.Context) (*session.Core, error) {
	core, err := remoteSession(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := core.CurrentUser(); !ok {
		return nil, errors.New("not logged in, run clubhub users login first")
	}
	if !core.IsAdmin() {
		return nil, errors.New("only administrators can manage users")
	}
	return core, nil
}
