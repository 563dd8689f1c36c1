package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/portunus-id/portunus"
)

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(
		newUsersCreateCmd(a),
		newUsersFlagCmd(a, "set-staff", "Grant or revoke staff access", func(ctx context.Context, e *portunus.Engine, email string, on bool) (portunus.User, error) {
			return e.SetStaff(ctx, email, on)
		}),
		newUsersFlagCmd(a, "set-superuser", "Grant or revoke superuser access", func(ctx context.Context, e *portunus.Engine, email string, on bool) (portunus.User, error) {
			return e.SetSuperuser(ctx, email, on)
		}),
	)
	return cmd
}

// withEngine builds a runtime for the duration of fn.
func (a *app) withEngine(ctx context.Context, fn func(*portunus.Engine) error) error {
	rt, err := newRuntime(ctx, a.settings, a.log)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt.engine)
}

func newUsersCreateCmd(a *app) *cobra.Command {
	var staff, superuser bool
	cmd := &cobra.Command{
		Use:   "create <email>",
		Short: "Create an account and mail a set-password link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *portunus.Engine) error {
				u, err := e.AdminCreateUser(cmd.Context(), portunus.AdminCreateRequest{
					Email:       args[0],
					IsStaff:     staff,
					IsSuperuser: superuser,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", u.Email, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&staff, "staff", false, "grant staff access")
	cmd.Flags().BoolVar(&superuser, "superuser", false, "grant superuser access")
	return cmd
}

type flagSetter func(ctx context.Context, e *portunus.Engine, email string, on bool) (portunus.User, error)

func newUsersFlagCmd(a *app, use, short string, set flagSetter) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <email> <true|false>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("invalid value %q: want true or false", args[1])
			}
			return a.withEngine(cmd.Context(), func(e *portunus.Engine) error {
				u, err := set(cmd.Context(), e, args[0], on)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: staff=%t superuser=%t\n", u.Email, u.IsStaff, u.IsSuperuser)
				return nil
			})
		},
	}
}
