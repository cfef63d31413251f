package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/quipper/poc/lti/tool/pkg/repositories/platform"
)

// NewPlatformCommand creates the platform command group.
func NewPlatformCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "platform",
		Short: "Manage platform registrations",
	}
	cmd.AddCommand(newPlatformAddCommand(rootOpts))
	cmd.AddCommand(newPlatformListCommand(rootOpts))
	return cmd
}

type platformAddOptions struct {
	reg        platform.Registration
	keySetFile string
}

func newPlatformAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &platformAddOptions{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a platform allowed to launch the tool",
		Example: `  ltitool platform add --name Canvas --issuer https://canvas.instructure.com \
    --client-id 10000000000001 --auth-login-url https://sso.canvaslms.com/api/lti/authorize_redirect \
    --key-set-url https://sso.canvaslms.com/api/lti/security/jwks --deployment 1:abc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlatformAdd(cmd, rootOpts, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.reg.Name, "name", "", "display name")
	f.StringVar(&opts.reg.Issuer, "issuer", "", "platform issuer (iss)")
	f.StringVar(&opts.reg.ClientID, "client-id", "", "client_id issued to the tool")
	f.StringVar(&opts.reg.AuthLoginURL, "auth-login-url", "", "platform OIDC authorization endpoint")
	f.StringVar(&opts.reg.AuthTokenURL, "auth-token-url", "", "platform OAuth2 token endpoint")
	f.StringVar(&opts.reg.KeySetURL, "key-set-url", "", "platform JWKS URL")
	f.StringVar(&opts.keySetFile, "key-set-file", "", "file holding the platform JWKS document, instead of --key-set-url")
	f.StringSliceVar(&opts.reg.DeploymentIDs, "deployment", nil, "accepted deployment id (repeatable; none accepts any)")
	return cmd
}

func runPlatformAdd(cmd *cobra.Command, rootOpts *RootOptions, opts *platformAddOptions) error {
	if opts.keySetFile != "" {
		b, err := os.ReadFile(opts.keySetFile)
		if err != nil {
			return fmt.Errorf("read key set: %w", err)
		}
		opts.reg.KeySet = string(b)
	}
	if err := opts.reg.Validate(); err != nil {
		return err
	}
	return withApp(cmd, rootOpts, func(a *app) error {
		id, err := a.platforms.Create(cmd.Context(), &opts.reg)
		if err != nil {
			return err
		}
		launchURL := a.cfg.LaunchURL()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "registered platform %d (%s, client_id %s)\n", id, opts.reg.Issuer, opts.reg.ClientID)
		fmt.Fprintf(out, "login URL:  %s\n", strings.TrimSuffix(launchURL, "launch/")+"login/")
		fmt.Fprintf(out, "launch URL: %s\n", launchURL)
		return nil
	})
}

func newPlatformListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered platforms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, rootOpts, func(a *app) error {
				regs, err := a.platforms.List(cmd.Context())
				if err != nil {
					return err
				}
				return renderPlatforms(cmd.OutOrStdout(), regs)
			})
		},
	}
}

func renderPlatforms(w io.Writer, regs []*platform.Registration) error {
	if len(regs) == 0 {
		fmt.Fprintln(w, "No platforms registered.")
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.Options(tablewriter.WithHeader([]string{"ID", "Name", "Issuer", "Client ID", "Keys", "Deployments"}))
	for _, r := range regs {
		keys := r.KeySetURL
		if keys == "" {
			keys = "(embedded)"
		}
		deployments := strings.Join(r.DeploymentIDs, ",")
		if deployments == "" {
			deployments = "*"
		}
		if err := table.Append([]string{strconv.FormatInt(r.ID, 10), r.Name, r.Issuer, r.ClientID, keys, deployments}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
