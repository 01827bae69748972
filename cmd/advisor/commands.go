package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/fin-advisor/backend/internal/client"
	"github.com/zhouzirui/fin-advisor/backend/internal/config"
	"github.com/zhouzirui/fin-advisor/backend/internal/widget"
)

var loginCmd = &cobra.Command{
	Use:   "login <email|username> <password>",
	Short: "Sign in and move guest messages to your account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			return a.login(cmd.Context(), cmd.OutOrStdout(), args[0], args[1])
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out; later messages are saved as a guest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := a.session.SignOut(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.text("signedout"))
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the local cache and start a new conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := a.session.Reset(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.text("reset"))
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [conversation-id]",
	Short: "List saved conversations, or print one transcript",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		return withApp(func(a *app) error {
			return a.history(cmd.Context(), cmd.OutOrStdout(), id)
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective widget configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write a config file with the default settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.DefaultWidgetConfig().Save(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}

// login authenticates against the backend, then replays the local buffers
// under the account email.
func (a *app) login(ctx context.Context, out io.Writer, identifier, password string) error {
	u, err := a.api.Login(ctx, identifier, password)
	if err != nil {
		if client.IsStatus(err, http.StatusUnauthorized) {
			return errors.New("invalid credentials")
		}
		return err
	}

	res, err := a.session.SignIn(ctx, widget.CurrentUser{Email: u.Email, Username: u.Username})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, a.text("signedin")+"\n", u.Email, res.Replayed, res.Failed)
	return nil
}

// history lists the conversations stored under the current owner, or
// prints one transcript when id is set.
func (a *app) history(ctx context.Context, out io.Writer, id string) error {
	auth := a.session.Auth()
	convID := a.session.ConversationID()
	if id != "" {
		convID = id
	}
	if !auth.Authenticated && convID == "" {
		fmt.Fprintln(out, a.text("empty"))
		return nil
	}
	owner := a.reconciler.Owner(auth, convID)

	if id != "" {
		messages, err := a.api.Transcript(ctx, owner, id)
		if err != nil {
			if client.IsStatus(err, http.StatusNotFound) {
				return fmt.Errorf("conversation %s not found", id)
			}
			return err
		}
		for _, msg := range messages {
			printMessage(out, msg)
		}
		return nil
	}

	summaries, err := a.api.ListConversations(ctx, owner)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(out, a.text("empty"))
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(out, "%s  %3d messages  updated %s\n", s.ID, s.MessageCount, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}
