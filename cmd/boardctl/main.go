// Command boardctl drives the task board from a terminal. Moves and notes are
// applied optimistically and reconciled with the server like the web board.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"taskboard-api/internal/apiclient"
	"taskboard-api/internal/apperr"
	"taskboard-api/internal/board"
	"taskboard-api/internal/lifecycle"
	"taskboard-api/internal/models"
)

var Version = "dev"

func main() {
	var profilePath string
	rootCmd := &cobra.Command{
		Use:           "boardctl",
		Short:         "Task board command-line client",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", defaultProfilePath(), "Path to the YAML profile")

	rootCmd.AddCommand(loginCmd(&profilePath))
	rootCmd.AddCommand(boardCmd(&profilePath))
	rootCmd.AddCommand(moveCmd(&profilePath))
	rootCmd.AddCommand(noteCmd(&profilePath))
	rootCmd.AddCommand(watchCmd(&profilePath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", apperr.MessageOf(err))
		slog.Debug("command failed", "error", err)
		os.Exit(1)
	}
}

func loginCmd(profilePath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session in the profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			server, _ := cmd.Flags().GetString("server")
			if password == "" {
				password = os.Getenv("BOARDCTL_PASSWORD")
			}

			p, err := LoadProfile(*profilePath)
			if err != nil {
				return err
			}
			if server != "" {
				p.Server = server
			}
			client, err := apiclient.New(p.Server)
			if err != nil {
				return err
			}
			session, err := client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			p.Token = session.Token
			p.UserID = session.User.ID
			p.Role = session.User.Role.String()
			if err := p.Save(*profilePath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", session.User.Email, p.Role)
			return nil
		},
	}
	cmd.Flags().StringP("email", "e", "", "Account email")
	cmd.Flags().StringP("password", "p", "", "Account password (or BOARDCTL_PASSWORD)")
	cmd.Flags().String("server", "", "Server URL, saved to the profile")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func boardCmd(profilePath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show the board, one section per stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			assignee, _ := cmd.Flags().GetString("assignee")
			b, _, err := openBoard(cmd.Context(), *profilePath)
			if err != nil {
				return err
			}
			renderBoard(cmd.OutOrStdout(), b, assignee)
			return nil
		},
	}
	cmd.Flags().StringP("assignee", "a", "", "Only show tasks of this user id")
	return cmd
}

func moveCmd(profilePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "move <task-id> <stage>",
		Short: "Move a task to another stage (todo, in_progress, in_review, done)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed error
			b, _, err := openBoard(cmd.Context(), *profilePath, board.WithFailureHandler(func(f board.Failure) { failed = f.Err }))
			if err != nil {
				return err
			}

			taskID := args[0]
			dispatched, err := moveTask(cmd.Context(), b, taskID, models.TaskStatus(args[1]))
			if err != nil {
				return err
			}
			if !dispatched {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do")
				return nil
			}
			b.Wait()
			if failed != nil {
				return failed
			}
			task, _ := b.Task(taskID)
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", task.ID, task.Status.Label())
			if task.ActualDeliveryDate != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Delivered %s\n", task.ActualDeliveryDate.Format("2 Jan 2006"))
			}
			return nil
		},
	}
}

// moveTask drives a drag gesture from the command line. A stage name that is
// not a column abandons the gesture.
func moveTask(ctx context.Context, b *board.Board, taskID string, target models.TaskStatus) (bool, error) {
	if !b.DragStart(taskID) {
		return false, apperr.New(apperr.NotFound, "Task not found", nil)
	}
	if !target.Valid() {
		b.CancelDrag()
		return false, apperr.New(apperr.InvalidArgument, fmt.Sprintf("unknown stage %q", target), nil)
	}
	b.DragOver(target)
	return b.DragEnd(ctx, taskID, target)
}

func noteCmd(profilePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "note <task-id> <text>",
		Short: "Set the note of a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed error
			b, _, err := openBoard(cmd.Context(), *profilePath, board.WithFailureHandler(func(f board.Failure) { failed = f.Err }))
			if err != nil {
				return err
			}
			if err := b.Edit(cmd.Context(), args[0], lifecycle.NotePatch(args[1])); err != nil {
				return err
			}
			b.Wait()
			if failed != nil {
				return failed
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Note saved")
			return nil
		},
	}
}

func watchCmd(profilePath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the board on screen, redrawing on every change",
		RunE: func(cmd *cobra.Command, args []string) error {
			assignee, _ := cmd.Flags().GetString("assignee")
			out := cmd.OutOrStdout()

			var b *board.Board
			redraw := func([]models.Task) {
				fmt.Fprint(out, "\033[H\033[2J")
				renderBoard(out, b, assignee)
			}
			b, client, profile, err := newBoard(*profilePath, board.WithObserver(redraw))
			if err != nil {
				return err
			}
			events, err := client.Subscribe(cmd.Context())
			if err != nil {
				slog.Warn("live updates unavailable, falling back to polling", "error", err)
			}
			err = b.Run(cmd.Context(), profile.Refresh, events)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringP("assignee", "a", "", "Only show tasks of this user id")
	return cmd
}

func newBoard(profilePath string, opts ...board.Option) (*board.Board, *apiclient.Client, Profile, error) {
	p, err := LoadProfile(profilePath)
	if err != nil {
		return nil, nil, Profile{}, err
	}
	userID, role, err := p.Session()
	if err != nil {
		return nil, nil, Profile{}, err
	}
	client, err := apiclient.New(p.Server, apiclient.WithToken(p.Token))
	if err != nil {
		return nil, nil, Profile{}, err
	}
	return board.New(client, userID, role, opts...), client, p, nil
}

// openBoard builds a board from the profile and loads it.
func openBoard(ctx context.Context, profilePath string, opts ...board.Option) (*board.Board, *apiclient.Client, error) {
	b, client, _, err := newBoard(profilePath, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := b.Reload(ctx); err != nil {
		return nil, nil, err
	}
	return b, client, nil
}
