package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/IntrovertedFL/runtipi/pkg/lifecycle"
)

func newAppCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Application lifecycle operations",
		Long: `Inspect and transition managed applications.

Every transition is validated against the application's current
status, recorded in the status store, and dispatched to the runner.
The new status is provisional (installing, starting, ...) until the
runner settles it to running, stopped, or missing.`,
	}

	cmd.AddCommand(newAppListCommand())
	cmd.AddCommand(newAppGetCommand())
	cmd.AddCommand(newAppInstallCommand())
	cmd.AddCommand(newAppStartCommand())
	cmd.AddCommand(newAppStopCommand())
	cmd.AddCommand(newAppUninstallCommand())
	cmd.AddCommand(newAppUpdateCommand())
	cmd.AddCommand(newAppOpenCommand())

	return cmd
}

func newAppListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all applications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			core, err := openCore(ctx)
			if err != nil {
				return err
			}
			defer core.close()

			apps, err := core.apps.List(ctx)
			if err != nil {
				return err
			}

			return printResult(apps, func() {
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSTATUS\tEXPOSED\tDOMAIN\tREVISION\tUPDATED")
				for _, app := range apps {
					domain := app.Domain
					if domain == "" {
						domain = "-"
					}
					fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%d\t%s\n",
						app.ID, app.Status, app.Exposed, domain,
						app.Version, app.UpdatedAt.Format("2006-01-02 15:04:05"))
				}
				_ = w.Flush()
			})
		},
	}
}

func newAppGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <app-id>",
		Short: "Show one application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			core, err := openCore(ctx)
			if err != nil {
				return err
			}
			defer core.close()

			app, err := core.apps.Get(ctx, args[0])
			if err != nil {
				return err
			}

			return printResult(app, func() { printApp(app) })
		},
	}
}

func newAppInstallCommand() *cobra.Command {
	var (
		configFile string
		exposed    bool
		domain     string
	)

	cmd := &cobra.Command{
		Use:   "install <app-id>",
		Short: "Install an application",
		Long: `Request installation of an application.

The configuration payload is opaque to the core: it is structurally
parsed as JSON and forwarded to the runner unchanged. Reinstalling an
app whose runtime artifacts are missing refreshes its configuration.`,
		Example: `  # Install with an empty config
  runtipi app install calculator

  # Install with a config payload, exposed under a domain
  runtipi app install wiki --app-config ./wiki.json --expose --domain wiki.example.com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var payload json.RawMessage
			if configFile != "" {
				data, err := os.ReadFile(configFile)
				if err != nil {
					return fmt.Errorf("failed to read app config %s: %w", configFile, err)
				}
				payload = data
			}

			core, err := openCore(ctx)
			if err != nil {
				return err
			}
			defer core.close()

			app, err := core.apps.Install(ctx, args[0], lifecycle.InstallOptions{
				Config:  payload,
				Exposed: exposed,
				Domain:  domain,
			})
			if err != nil {
				return err
			}

			return printResult(app, func() { printApp(app) })
		},
	}

	cmd.Flags().StringVar(&configFile, "app-config", "", "JSON config payload file for the runner")
	cmd.Flags().BoolVar(&exposed, "expose", false, "expose the app externally")
	cmd.Flags().StringVar(&domain, "domain", "", "domain binding for the exposed app")

	return cmd
}

func newAppStartCommand() *cobra.Command {
	return newAppTransitionCommand("start", "Start a stopped application",
		func(core *core) transitionFunc { return core.apps.Start })
}

func newAppStopCommand() *cobra.Command {
	return newAppTransitionCommand("stop", "Stop a running application",
		func(core *core) transitionFunc { return core.apps.Stop })
}

func newAppUninstallCommand() *cobra.Command {
	return newAppTransitionCommand("uninstall", "Uninstall an application",
		func(core *core) transitionFunc { return core.apps.Uninstall })
}

func newAppUpdateCommand() *cobra.Command {
	return newAppTransitionCommand("update", "Update an application in place",
		func(core *core) transitionFunc { return core.apps.Update })
}

type transitionFunc = func(ctx context.Context, id string) (*lifecycle.App, error)

// newAppTransitionCommand builds the shared shape of the single-argument
// transition commands.
func newAppTransitionCommand(use, short string, pick func(*core) transitionFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <app-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			core, err := openCore(ctx)
			if err != nil {
				return err
			}
			defer core.close()

			app, err := pick(core)(ctx, args[0])
			if err != nil {
				return err
			}

			return printResult(app, func() { printApp(app) })
		},
	}
}

func newAppOpenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "open <app-id>",
		Short: "Record an application open",
		Long: `Bump an application's usage counters (open count and last-opened
timestamp). Not a lifecycle transition: no event is dispatched and the
status is untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			core, err := openCore(ctx)
			if err != nil {
				return err
			}
			defer core.close()

			if err := core.apps.RecordOpen(ctx, args[0]); err != nil {
				return err
			}

			app, err := core.apps.Get(ctx, args[0])
			if err != nil {
				return err
			}

			return printResult(app, func() { printApp(app) })
		},
	}
}

// printApp renders one application in the plain-text format.
func printApp(app *lifecycle.App) {
	fmt.Printf("id:       %s\n", app.ID)
	fmt.Printf("status:   %s\n", app.Status)
	fmt.Printf("exposed:  %t\n", app.Exposed)
	if app.Domain != "" {
		fmt.Printf("domain:   %s\n", app.Domain)
	}
	fmt.Printf("revision: %d\n", app.Version)
	fmt.Printf("opens:    %d\n", app.OpenCount)
	if app.LastOpenedAt != nil {
		fmt.Printf("last open: %s\n", app.LastOpenedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("created:  %s\n", app.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("updated:  %s\n", app.UpdatedAt.Format("2006-01-02 15:04:05"))
}
