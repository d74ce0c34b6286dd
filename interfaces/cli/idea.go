package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/ideaflow/domain/idea"
	infraconfig "github.com/felixgeelhaar/ideaflow/infrastructure/config"
	api "github.com/felixgeelhaar/ideaflow/interfaces/api"
)

// ideaOptions are shared by every idea subcommand.
type ideaOptions struct {
	configPath string
	outputJSON bool
}

func (a *App) newIdeaCmd() *cobra.Command {
	opts := &ideaOptions{}

	cmd := &cobra.Command{
		Use:   "idea",
		Short: "Create, move and inspect ideas",
		Long: `Manage ideas in the configured store.

Without -c the in-memory store is used, which only lives for one command.
Point -c at a configuration with a persistent backend to keep ideas between
invocations.

Every write takes the version you last read with --version. If someone else
changed the idea in the meantime the command fails with a conflict and
nothing is written.`,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.PersistentFlags().BoolVar(&opts.outputJSON, "json", false, "Output as JSON")

	cmd.AddCommand(
		a.newIdeaCreateCmd(opts),
		a.newIdeaPublishCmd(opts),
		a.newIdeaTransitionCmd(opts),
		a.newIdeaUpdateCmd(opts),
		a.newIdeaShowCmd(opts),
		a.newIdeaListCmd(opts),
		a.newIdeaHistoryCmd(opts),
		a.newIdeaVerifyCmd(opts),
		a.newIdeaDeleteCmd(opts),
	)

	return cmd
}

// withRuntime loads the configuration, builds the runtime and runs fn with
// it. The runtime is closed afterwards.
func (a *App) withRuntime(ctx context.Context, opts *ideaOptions, fn func(*api.Runtime) error) (err error) {
	cfg := api.DefaultConfig()
	if opts.configPath != "" {
		cfg, err = api.NewConfigLoader().LoadFile(opts.configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
	}

	rt, err := api.Build(ctx, cfg,
		infraconfig.WithLogOutput(a.stderr),
		infraconfig.WithServiceVersion(Version),
	)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, rt.Close(context.WithoutCancel(ctx)))
	}()

	return fn(rt)
}

func (a *App) newIdeaCreateCmd(opts *ideaOptions) *cobra.Command {
	var (
		draft     idea.Draft
		published bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an idea",
		Long: `Create an idea at version 1.

New ideas start as drafts. Use --published to create the idea directly in
the proposed status.

Examples:
  ideaflow idea create --title "Cache warmup" --tag perf --owner ann
  ideaflow idea create --title "Dark mode" --published`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), opts, func(rt *api.Runtime) error {
				create := rt.Service.CreateDraft
				if published {
					create = rt.Service.CreatePublished
				}
				created, err := create(cmd.Context(), draft)
				if err != nil {
					return err
				}
				return a.printIdea(opts, "Created", created)
			})
		},
	}

	cmd.Flags().StringVar(&draft.Title, "title", "", "Idea title (required)")
	cmd.Flags().StringVar(&draft.Description, "description", "", "Idea description")
	cmd.Flags().StringSliceVar(&draft.Tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringVar(&draft.Owner, "owner", "", "Owner")
	cmd.Flags().BoolVar(&published, "published", false, "Create in the proposed status")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

func (a *App) newIdeaPublishCmd(opts *ideaOptions) *cobra.Command {
	var (
		version int
		actor   string
	)

	cmd := &cobra.Command{
		Use:   "publish <id>",
		Short: "Move a draft to proposed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), opts, func(rt *api.Runtime) error {
				published, err := rt.Service.Publish(cmd.Context(), args[0], version, actor)
				if err != nil {
					return err
				}
				return a.printIdea(opts, "Published", published)
			})
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Expected current version (required)")
	cmd.Flags().StringVar(&actor, "actor", "", "User performing the change")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func (a *App) newIdeaTransitionCmd(opts *ideaOptions) *cobra.Command {
	var req api.TransitionRequest

	cmd := &cobra.Command{
		Use:   "transition <id> <status>",
		Short: "Move an idea to its next status",
		Long: `Move an idea to another lifecycle status.

Only the next status in the chain is accepted; run "ideaflow transitions"
to print the graph.

Examples:
  ideaflow idea transition 6f1c... experiment --version 2 --actor ann --reason "A/B test"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, ok := idea.ParseStatus(args[1])
			if !ok {
				return fmt.Errorf("%w: %q", idea.ErrUnknownStatus, args[1])
			}
			req.ID = args[0]
			req.Target = target

			return a.withRuntime(cmd.Context(), opts, func(rt *api.Runtime) error {
				moved, err := rt.Service.TransitionState(cmd.Context(), req)
				if err != nil {
					return err
				}
				return a.printIdea(opts, "Moved", moved)
			})
		},
	}

	cmd.Flags().IntVar(&req.ExpectedVersion, "version", 0, "Expected current version (required)")
	cmd.Flags().StringVar(&req.Actor, "actor", "", "User performing the change")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "Why the idea is moving")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func (a *App) newIdeaUpdateCmd(opts *ideaOptions) *cobra.Command {
	var (
		version                   int
		title, description, owner string
		tags                      []string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change an idea's title, description, tags or owner",
		Long: `Change an idea's content without moving it.

Only the flags you pass are changed. Pass --tag "" to clear the tags.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch idea.Content
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("owner") {
				patch.Owner = &owner
			}
			if flags.Changed("tag") {
				patch.Tags = nonEmpty(tags)
			}

			return a.withRuntime(cmd.Context(), opts, func(rt *api.Runtime) error {
				updated, err := rt.Service.UpdateContent(cmd.Context(), args[0], version, patch)
				if err != nil {
					return err
				}
				return a.printIdea(opts, "Updated", updated)
			})
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Expected current version (required)")
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&owner, "owner", "", "New owner")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Replacement tags (repeatable)")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

// nonEmpty drops blank tags but keeps the result non-nil so an explicit
// empty --tag clears the list.
func nonEmpty(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (a *App) newIdeaShowCmd(opts *ideaOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an idea and where it can move next",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), opts, func(rt *api.Runtime) error {
				i, err := rt.Service.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.outputJSON {
					return a.printJSON(map[string]any{
						"idea": i,
						"next": idea.Lifecycle().AllowedTransitions(i.Status),
					})
				}
				a.writeIdea(i)
				a.writeNext(i.Status)
				return nil
			})
		},
	}
}

func (a *App) newIdeaListCmd(opts *ideaOptions) *cobra.Command {
	var (
		filter     idea.ListFilter
		statuses   []string
		orderBy    string
		descending bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ideas",
		Long: `List ideas, oldest first.

Examples:
  ideaflow idea list --status proposed --status experiment
  ideaflow idea list --owner ann --order title --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range statuses {
				st, ok := idea.ParseStatus(s)
				if !ok {
					return fmt.Errorf("%w: %q", idea.ErrUnknownStatus, s)
				}
				filter.Status = append(filter.Status, st)
			}
			switch o := idea.OrderBy(orderBy); o {
			case idea.OrderByCreatedAt, idea.OrderByUpdatedAt, idea.OrderByTitle:
				filter.OrderBy = o
			default:
				return fmt.Errorf("%w: unknown order %q", idea.ErrInvalidIdea, orderBy)
			}
			filter.Descending = descending

			return a.withRuntime(cmd.Context(), opts, func(rt *api.Runtime) error {
				ideas, err := rt.Service.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if opts.outputJSON {
					return a.printJSON(ideas)
				}
				if len(ideas) == 0 {
					_, _ = fmt.Fprintln(a.stdout, "No ideas found.")
					return nil
				}
				_, _ = fmt.Fprintf(a.stdout, "Ideas (%d):\n", len(ideas))
				for _, i := range ideas {
					_, _ = fmt.Fprintf(a.stdout, "  %s  %-10s v%-3d %s\n", i.ID, i.Status, i.Version, i.Title)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&filter.Owner, "owner", "", "Filter by owner")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "Maximum number of ideas")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "Number of ideas to skip")
	cmd.Flags().StringVar(&orderBy, "order", string(idea.OrderByCreatedAt), "Order by created_at, updated_at or title")
	cmd.Flags().BoolVar(&descending, "desc", false, "Reverse the order")

	return cmd
}

func (a *App) newIdeaHistoryCmd(opts *ideaOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the audited transitions of an idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), opts, func(rt *api.Runtime) error {
				entries, err := rt.Service.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.outputJSON {
					return a.printJSON(entries)
				}
				if len(entries) == 0 {
					_, _ = fmt.Fprintln(a.stdout, "No transitions recorded.")
					return nil
				}
				for _, e := range entries {
					_, _ = fmt.Fprintf(a.stdout, "  #%d  %s  %s -> %s  by %s",
						e.ID, e.Timestamp.Format("2006-01-02 15:04:05"), e.PreviousState, e.NewState, e.UserID)
					if e.Goal != "" {
						_, _ = fmt.Fprintf(a.stdout, "  (%s)", e.Goal)
					}
					_, _ = fmt.Fprintln(a.stdout)
				}
				return nil
			})
		},
	}
}

func (a *App) newIdeaVerifyCmd(opts *ideaOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <id>",
		Short: "Replay an idea's audit trail and check it matches the stored status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), opts, func(rt *api.Runtime) error {
				report, err := rt.Service.VerifyHistory(cmd.Context(), args[0])
				if report == nil {
					return err
				}
				if opts.outputJSON {
					if jsonErr := a.printJSON(report); jsonErr != nil {
						return jsonErr
					}
					return err
				}
				_, _ = fmt.Fprintf(a.stdout, "Replayed %d step(s): %s -> %s\n", len(report.Steps), report.Start, report.Final)
				if err != nil {
					_, _ = fmt.Fprintf(a.stdout, "✗ History does not verify\n")
					return err
				}
				_, _ = fmt.Fprintf(a.stdout, "✓ History verified\n")
				return nil
			})
		},
	}
}

func (a *App) newIdeaDeleteCmd(opts *ideaOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an idea",
		Long:  `Delete an idea. Its audit entries are kept.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), opts, func(rt *api.Runtime) error {
				if err := rt.Service.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(a.stdout, "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}
