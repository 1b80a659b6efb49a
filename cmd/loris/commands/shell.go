package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dalspace/loris/dispatch"
)

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive operator shell; remote requests are served meanwhile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withSession(cmd, func(s *session) error {
				ls, _, err := s.listener()
				if err != nil {
					return err
				}

				ls.Start(ctx)
				defer func() { _ = ls.Stop() }()

				sh := &shell{
					client:      s.client(),
					in:          cmd.InOrStdin(),
					out:         cmd.OutOrStdout(),
					interactive: term.IsTerminal(0),
					done:        ls.Done(),
				}

				return sh.run(ctx)
			})
		},
	}
}

type shell struct {
	client      *dispatch.Client
	in          io.Reader
	out         io.Writer
	interactive bool
	// done is closed when the background listener exits.
	done <-chan struct{}
}

func (sh *shell) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	// Scan cannot be interrupted; after cancel this goroutine stays blocked
	// until the reader returns, which for stdin means process exit.
	go func() {
		defer close(lines)

		sc := bufio.NewScanner(sh.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		sh.prompt()

		var line string
		select {
		case <-ctx.Done():
			return nil
		case <-sh.done:
			return errors.New("shell: link closed")
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}

		quit, err := sh.exec(ctx, strings.Fields(line))
		if err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (sh *shell) prompt() {
	if sh.interactive {
		fmt.Fprint(sh.out, "loris> ")
	}
}

// exec runs one shell line. It reports whether the shell should exit.
func (sh *shell) exec(ctx context.Context, fields []string) (bool, error) {
	if len(fields) == 0 {
		return false, nil
	}

	switch fields[0] {
	case "quit", "exit":
		return true, nil
	case "help", "?":
		sh.help()
		return false, nil
	}

	op, ok := lookupOperation(fields[0])
	if !ok {
		return false, fmt.Errorf("unknown command %q, try help", fields[0])
	}

	args := fields[1:]
	if err := op.checkArgs(args); err != nil {
		return false, err
	}

	return false, op.run(ctx, sh.client, sh.out, args)
}

func (sh *shell) help() {
	for _, op := range operations {
		fmt.Fprintf(sh.out, "  %-26s %s\n", op.usage, op.short)
	}
	fmt.Fprintf(sh.out, "  %-26s %s\n", "quit", "leave the shell")
}
