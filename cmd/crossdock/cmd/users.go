package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/uqsoft/crossdock/internal/config"
	"github.com/uqsoft/crossdock/internal/department"
	"github.com/uqsoft/crossdock/internal/output"
	"github.com/uqsoft/crossdock/internal/userstore"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the user-to-department directory",
		Long: `Assign Telegram users to departments. A user's assignment decides the
scope of their answers: their department plus the common pool. Users
without an assignment get full visibility across every department.`,
	}

	cmd.AddCommand(newUsersSetCmd())
	cmd.AddCommand(newUsersShowCmd())
	cmd.AddCommand(newUsersClearCmd())
	cmd.AddCommand(newUsersListCmd())

	return cmd
}

// openUsers opens the directory database from config.
func openUsers() (*userstore.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	users, err := userstore.Open(cfg.Users.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return users, cfg, nil
}

func parseUserID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram user ID %q: must be an integer", arg)
	}
	return id, nil
}

func newUsersSetCmd() *cobra.Command {
	var fullName string

	cmd := &cobra.Command{
		Use:   "set <telegram-id> <department>",
		Short: "Assign a user to a department",
		Long: `Assign a user to a department by Telegram ID. The value is checked
against the configured roster; legacy directory shapes like
'Department.SORTING' resolve to their canonical slug first.

Examples:
  crossdock users set 123456789 sorting
  crossdock users set 987654321 delivery/courier --name "Иван Петров"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsersSet(cmd.Context(), cmd, args[0], args[1], fullName)
		},
	}

	cmd.Flags().StringVar(&fullName, "name", "", "Full name to store alongside the assignment")

	return cmd
}

func runUsersSet(ctx context.Context, cmd *cobra.Command, idArg, slugArg, fullName string) error {
	id, err := parseUserID(idArg)
	if err != nil {
		return err
	}

	users, cfg, err := openUsers()
	if err != nil {
		return err
	}
	defer func() { _ = users.Close() }()

	set, err := cfg.DepartmentSet()
	if err != nil {
		return err
	}

	slug := department.Normalize(slugArg)
	if !set.Contains(slug) {
		return fmt.Errorf("unknown department %q (valid: %s)", slugArg, strings.Join(set.Slugs(), ", "))
	}

	if err := users.SetDepartment(ctx, id, slug); err != nil {
		return err
	}
	if fullName != "" {
		if err := users.SetFullName(ctx, id, fullName); err != nil {
			return err
		}
	}

	out := output.New(cmd.OutOrStdout())
	out.Successf("user %d assigned to %s (%s)", id, slug, set.DisplayName(slug))
	return nil
}

func newUsersShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <telegram-id>",
		Short: "Show one user's assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsersShow(cmd.Context(), cmd, args[0])
		},
	}

	return cmd
}

func runUsersShow(ctx context.Context, cmd *cobra.Command, idArg string) error {
	id, err := parseUserID(idArg)
	if err != nil {
		return err
	}

	users, cfg, err := openUsers()
	if err != nil {
		return err
	}
	defer func() { _ = users.Close() }()

	set, err := cfg.DepartmentSet()
	if err != nil {
		return err
	}

	u, err := users.Get(ctx, id)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if u == nil {
		out.Dim(fmt.Sprintf("user %d is not in the directory; queries see every department", id))
		return nil
	}
	out.KV("Telegram ID", fmt.Sprintf("%d", u.TelegramID))
	if u.FullName != "" {
		out.KV("Name", u.FullName)
	}
	if u.Department == "" {
		out.KV("Department", "unassigned (full visibility)")
	} else {
		out.KV("Department", fmt.Sprintf("%s (%s)", u.Department, set.DisplayName(u.Department)))
	}
	if !u.UpdatedAt.IsZero() {
		out.KV("Updated", u.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func newUsersClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear <telegram-id>",
		Short: "Remove a user's department assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsersClear(cmd.Context(), cmd, args[0])
		},
	}

	return cmd
}

func runUsersClear(ctx context.Context, cmd *cobra.Command, idArg string) error {
	id, err := parseUserID(idArg)
	if err != nil {
		return err
	}

	users, _, err := openUsers()
	if err != nil {
		return err
	}
	defer func() { _ = users.Close() }()

	if err := users.ClearDepartment(ctx, id); err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Successf("user %d unassigned; queries now see every department", id)
	return nil
}

func newUsersListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every user in the directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUsersList(cmd.Context(), cmd)
		},
	}

	return cmd
}

func runUsersList(ctx context.Context, cmd *cobra.Command) error {
	users, _, err := openUsers()
	if err != nil {
		return err
	}
	defer func() { _ = users.Close() }()

	all, err := users.List(ctx)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if len(all) == 0 {
		out.Dim("no users in the directory")
		return nil
	}

	rows := make([][]string, 0, len(all))
	for _, u := range all {
		dept := u.Department
		if dept == "" {
			dept = "(unassigned)"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", u.TelegramID),
			u.FullName,
			dept,
		})
	}
	out.Table([]string{"TELEGRAM ID", "NAME", "DEPARTMENT"}, rows)
	return nil
}
