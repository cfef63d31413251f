package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/quipper/poc/lti/tool/internal/ltitool"
	"github.com/quipper/poc/lti/tool/pkg/repositories/library"
)

// NewLibraryCommand creates the library command group.
func NewLibraryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Manage content libraries, their platforms and grants",
	}
	cmd.AddCommand(newLibraryAddCommand(rootOpts))
	cmd.AddCommand(newLibraryAuthorizeCommand(rootOpts))
	cmd.AddCommand(newLibraryGrantCommand(rootOpts))
	return cmd
}

func newLibraryAddCommand(rootOpts *RootOptions) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "add <lib:org:slug>",
		Short: "Create a library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := ltitool.ParseLibraryKey(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, rootOpts, func(a *app) error {
				if err := a.libraries.CreateLibrary(cmd.Context(), &library.Library{Key: key.String(), Title: title}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created library %s\n", key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "library title")
	return cmd
}

func newLibraryAuthorizeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "authorize <lib:org:slug> <platform-id>",
		Short: "Allow a registered platform to launch into a library",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := ltitool.ParseLibraryKey(args[0])
			if err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid platform id %q", args[1])
			}
			return withApp(cmd, rootOpts, func(a *app) error {
				if err := a.libraries.AuthorizePlatform(cmd.Context(), key.String(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "platform %d may launch into %s\n", id, key)
				return nil
			})
		},
	}
}

func newLibraryGrantCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <lib:org:slug> <principal> <none|read|author|admin>",
		Short: "Set the access level of a principal, overriding any bootstrapped grant",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := ltitool.ParseLibraryKey(args[0])
			if err != nil {
				return err
			}
			level, err := library.ParseAccessLevel(args[2])
			if err != nil {
				return err
			}
			return withApp(cmd, rootOpts, func(a *app) error {
				if err := a.libraries.SetGrant(cmd.Context(), key.String(), args[1], level); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s has %s access to %s\n", args[1], level, key)
				return nil
			})
		},
	}
}

func withApp(cmd *cobra.Command, rootOpts *RootOptions, fn func(a *app) error) error {
	cfg, err := rootOpts.load()
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
