package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/radhhh/flae-bot/internal/adapter/discord"
	"github.com/radhhh/flae-bot/internal/dispatch"
	"github.com/radhhh/flae-bot/internal/domain"
	"github.com/radhhh/flae-bot/internal/repository"
)

type runner struct {
	opts *options
	open openFunc
}

func (r *runner) invocation(kind domain.InvocationKind) domain.Invocation {
	id := r.opts.invocationID
	if id == "" {
		id = uuid.NewString()
	}
	return domain.Invocation{ID: id, UserID: r.opts.user, Kind: kind}
}

func (r *runner) dispatch(cmd *cobra.Command, inv domain.Invocation) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, closeFn, err := r.open(ctx, r.opts)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	resp := b.Dispatch(ctx, inv)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), render(resp, r.opts.plain))
	if resp.Ephemeral {
		return errReported
	}
	return nil
}

func (r *runner) command(cmd *cobra.Command, name string, fields map[string]string) error {
	inv := r.invocation(domain.InvocationKindCommand)
	inv.Command = name
	inv.Fields = fields
	return r.dispatch(cmd, inv)
}

// control presses a button on a specific session.
func (r *runner) control(cmd *cobra.Command, control domain.ControlID, sessionID string) error {
	inv := r.invocation(domain.InvocationKindButton)
	inv.Control = control
	inv.Target = sessionID
	return r.dispatch(cmd, inv)
}

// submit fills in the form a control would open.
func (r *runner) submit(cmd *cobra.Command, control domain.ControlID, sessionID string, fields map[string]string) error {
	inv := r.invocation(domain.InvocationKindModal)
	inv.Control = control
	inv.Target = sessionID
	inv.Fields = fields
	return r.dispatch(cmd, inv)
}

// sessionAction runs the slash command form, or the button form when a
// session id is given.
func (r *runner) sessionAction(use, short, command string, control domain.ControlID) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [session-id]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return r.control(cmd, control, args[0])
			}
			return r.command(cmd, command, nil)
		},
	}
}

func newSessionCmd(r *runner) *cobra.Command {
	session := &cobra.Command{Use: "session", Short: "Session lifecycle"}

	var goal string
	in := &cobra.Command{
		Use:   "in <subject>",
		Short: "Clock in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.command(cmd, dispatch.CommandSessionIn, map[string]string{
				dispatch.FieldSubject: args[0],
				dispatch.FieldGoal:    goal,
			})
		},
	}
	in.Flags().StringVar(&goal, "goal", "", "session goal")

	var note string
	out := &cobra.Command{
		Use:   "out [session-id]",
		Short: "Clock out",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return r.control(cmd, domain.ControlClockOut, args[0])
			}
			return r.command(cmd, dispatch.CommandSessionOut, map[string]string{dispatch.FieldNote: note})
		},
	}
	out.Flags().StringVar(&note, "note", "", "note to attach")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.command(cmd, dispatch.CommandSessionStatus, nil)
		},
	}

	adjust := &cobra.Command{
		Use:   "adjust <duration> [session-id]",
		Short: "Set effective time (1h 20m) or change it (+15m, -10m)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := map[string]string{dispatch.FieldDuration: args[0]}
			if len(args) == 2 {
				return r.submit(cmd, domain.ControlAdjustTime, args[1], fields)
			}
			return r.command(cmd, dispatch.CommandSessionAdjust, fields)
		},
	}

	goalCmd := &cobra.Command{
		Use:   "goal <session-id> <goal>",
		Short: "Replace a session's goal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.submit(cmd, domain.ControlEditGoal, args[0], map[string]string{dispatch.FieldGoal: args[1]})
		},
	}

	session.AddCommand(
		in,
		out,
		r.sessionAction("pause", "Pause the open session", dispatch.CommandSessionPause, domain.ControlPause),
		r.sessionAction("resume", "Resume the paused session", dispatch.CommandSessionResume, domain.ControlResume),
		r.sessionAction("confirm", "Confirm a stopped session", dispatch.CommandSessionConfirm, domain.ControlConfirm),
		r.sessionAction("reopen", "Reopen a confirmed session", dispatch.CommandSessionReopen, domain.ControlReopen),
		status,
		adjust,
		goalCmd,
	)
	return session
}

func newAllocCmd(r *runner) *cobra.Command {
	alloc := &cobra.Command{Use: "alloc", Short: "Weekly allocations"}

	alloc.AddCommand(&cobra.Command{
		Use:   "set <subject> <hours>",
		Short: "Set this week's target for a subject",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.command(cmd, dispatch.CommandAllocSet, map[string]string{
				dispatch.FieldSubject: args[0],
				dispatch.FieldHours:   args[1],
			})
		},
	})
	alloc.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show this week's progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.command(cmd, dispatch.CommandAllocShow, nil)
		},
	})
	return alloc
}

func newRegisterCmd(opts *options) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "register-commands",
		Short: "Register slash commands with the Discord application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmds, err := discord.Commands()
			if err != nil {
				return err
			}
			if dryRun {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cmds)
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.DiscordBotToken == "" {
				return fmt.Errorf("discord.bot_token is required")
			}
			client := discord.NewClient(cfg.DiscordAPIURL, cfg.DiscordBotToken)
			registered, err := client.RegisterCommands(cmd.Context(), cfg.DiscordAppID, cfg.DiscordGuildID, cmds)
			if err != nil {
				return err
			}
			scope := "globally"
			if cfg.DiscordGuildID != "" {
				scope = "in guild " + cfg.DiscordGuildID
			}
			for _, c := range registered {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "registered /%s (%s) %s\n", c.Name, c.ID, scope)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the command manifest instead of registering it")
	return cmd
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the configured store's schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			store, err := repository.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", cfg.StoreDriver)
			return nil
		},
	}
}
