package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/fin-advisor/backend/internal/model/chat"
	"github.com/zhouzirui/fin-advisor/backend/internal/widget"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func runChat(ctx context.Context, in io.Reader, out io.Writer) error {
	return withApp(func(a *app) error {
		return a.chat(ctx, in, out)
	})
}

// lockedWriter serialises output from the prompt loop and the cache watcher.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// chat runs the prompt loop until /quit, end of input or ctx is done. A
// second goroutine follows auth changes made by other processes sharing the
// cache file.
func (a *app) chat(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := &lockedWriter{w: out}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := a.session.Watch(gctx, a.cache, func(auth widget.AuthState) {
			if auth.Authenticated {
				fmt.Fprintf(w, "\n[signed in elsewhere as %s]\n", auth.Email)
			} else {
				fmt.Fprintln(w, "\n[signed out elsewhere]")
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("cache watcher stopped", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return a.repl(gctx, in, w)
	})
	return g.Wait()
}

func (a *app) repl(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	fmt.Fprintln(out, a.text("welcome"))
	if auth := a.session.Auth(); auth.Authenticated {
		fmt.Fprintf(out, "(signed in as %s)\n", auth.Email)
	}
	for _, msg := range a.session.Messages() {
		printMessage(out, msg)
	}

	for {
		fmt.Fprint(out, "you> ")
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := a.command(ctx, out, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if quit {
				fmt.Fprintln(out, a.text("bye"))
				return nil
			}
			continue
		}

		reply, err := a.session.Send(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		printMessage(out, reply)
	}
}

// command handles one slash command and reports whether to quit.
func (a *app) command(ctx context.Context, out io.Writer, line string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(out, a.text("help"))
	case "/login":
		if len(fields) != 3 {
			return false, errors.New("usage: /login <email|username> <password>")
		}
		return false, a.login(ctx, out, fields[1], fields[2])
	case "/logout":
		if err := a.session.SignOut(); err != nil {
			return false, err
		}
		fmt.Fprintln(out, a.text("signedout"))
	case "/reset":
		if err := a.session.Reset(); err != nil {
			return false, err
		}
		fmt.Fprintln(out, a.text("reset"))
	case "/history":
		id := ""
		if len(fields) > 1 {
			id = fields[1]
		}
		return false, a.history(ctx, out, id)
	case "/lang":
		if len(fields) != 2 || !supportedLanguage(fields[1]) {
			return false, errors.New("usage: /lang <en|hi>")
		}
		if err := a.setLanguage(fields[1]); err != nil {
			return false, err
		}
		fmt.Fprintf(out, a.text("language")+"\n", fields[1])
	default:
		fmt.Fprintln(out, a.text("unknown"))
	}
	return false, nil
}

func printMessage(out io.Writer, msg chat.Message) {
	who := "you"
	if msg.Sender == chat.SenderBot {
		who = "advisor"
	}
	fmt.Fprintf(out, "%s> %s\n", who, msg.Text)
}
