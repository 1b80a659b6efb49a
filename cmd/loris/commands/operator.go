package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dalspace/loris/dispatch"
	"github.com/dalspace/loris/filexfer"
)

// operation is an operator request usable both as a one-shot command and
// from the shell.
type operation struct {
	name    string
	usage   string
	short   string
	minArgs int
	// maxArgs < 0 accepts any number of arguments.
	maxArgs int
	run     func(ctx context.Context, c *dispatch.Client, out io.Writer, args []string) error
}

var operations = []operation{
	{
		name: "op", usage: "op <code>", short: "Send a fire-and-forget or unreserved opcode",
		minArgs: 1, maxArgs: 1,
		run: func(_ context.Context, c *dispatch.Client, out io.Writer, args []string) error {
			op, err := dispatch.ParseOpcode(args[0])
			if err != nil {
				return err
			}

			if info, ok := dispatch.Lookup(op); ok && info.Shape != dispatch.FireAndForget {
				return fmt.Errorf("%s is the %s request, use its own command (see help)", op, info.Name)
			}
			if err := c.SendRaw(op); err != nil {
				return err
			}

			fmt.Fprintf(out, "sent %s\n", op)

			return nil
		},
	},
	{
		name: "telemetry", usage: "telemetry <local>", short: "Fetch the basic telemetry snapshot",
		minArgs: 1, maxArgs: 1,
		run: func(_ context.Context, c *dispatch.Client, out io.Writer, args []string) error {
			s, err := c.Telemetry(args[0], false)
			report(out, s)

			return err
		},
	},
	{
		name: "telemetry-large", usage: "telemetry-large <local>", short: "Fetch the large telemetry snapshot",
		minArgs: 1, maxArgs: 1,
		run: func(_ context.Context, c *dispatch.Client, out io.Writer, args []string) error {
			s, err := c.Telemetry(args[0], true)
			report(out, s)

			return err
		},
	},
	{
		name: "picture", usage: "picture <local>", short: "Take a picture and fetch it",
		minArgs: 1, maxArgs: 1,
		run: func(_ context.Context, c *dispatch.Client, out io.Writer, args []string) error {
			s, err := c.TakePicture(args[0])
			report(out, s)

			return err
		},
	},
	{
		name: "exec", usage: "exec <command...>", short: "Run a shell command on the remote station",
		minArgs: 1, maxArgs: -1,
		run: func(_ context.Context, c *dispatch.Client, out io.Writer, args []string) error {
			res, err := c.Exec(strings.Join(args, " "))
			if len(res) > 0 {
				_, _ = out.Write(res)
				if res[len(res)-1] != '\n' {
					fmt.Fprintln(out)
				}
			}

			return err
		},
	},
	{
		name: "fetch", usage: "fetch <remote> <local>", short: "Download a remote file",
		minArgs: 2, maxArgs: 2,
		run: func(_ context.Context, c *dispatch.Client, out io.Writer, args []string) error {
			s, err := c.Fetch(args[0], args[1])
			report(out, s)

			return err
		},
	},
	{
		name: "push", usage: "push <local> <remote>", short: "Upload a file to the remote station",
		minArgs: 2, maxArgs: 2,
		run: func(_ context.Context, c *dispatch.Client, out io.Writer, args []string) error {
			s, err := c.Push(args[0], args[1])
			report(out, s)

			return err
		},
	},
	{
		name: "ls", usage: "ls [dir]", short: "List a remote directory",
		minArgs: 0, maxArgs: 1,
		run: func(_ context.Context, c *dispatch.Client, out io.Writer, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			listing, err := c.List(dir)
			if err != nil {
				return err
			}
			_, err = out.Write(listing)

			return err
		},
	},
	{
		name: "rm", usage: "rm <remote>", short: "Remove a remote file",
		minArgs: 1, maxArgs: 1,
		run: func(ctx context.Context, c *dispatch.Client, out io.Writer, args []string) error {
			if err := c.Remove(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(out, "removed %s\n", args[0])

			return nil
		},
	},
	{
		name: "mv", usage: "mv <src> <dst>", short: "Rename a remote file",
		minArgs: 2, maxArgs: 2,
		run: func(ctx context.Context, c *dispatch.Client, out io.Writer, args []string) error {
			if err := c.Move(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(out, "moved %s to %s\n", args[0], args[1])

			return nil
		},
	},
	{
		name: "encode-remote", usage: "encode-remote <remote>", short: "Reed-Solomon encode a remote file",
		minArgs: 1, maxArgs: 1,
		run: func(_ context.Context, c *dispatch.Client, _ io.Writer, args []string) error {
			return c.EncodeRemote(args[0])
		},
	},
	{
		name: "decode-remote", usage: "decode-remote <remote>", short: "Reed-Solomon decode a remote file",
		minArgs: 1, maxArgs: 1,
		run: func(_ context.Context, c *dispatch.Client, _ io.Writer, args []string) error {
			return c.DecodeRemote(args[0])
		},
	},
}

func lookupOperation(name string) (operation, bool) {
	for _, op := range operations {
		if op.name == name {
			return op, true
		}
	}

	return operation{}, false
}

func (o operation) checkArgs(args []string) error {
	if len(args) < o.minArgs || (o.maxArgs >= 0 && len(args) > o.maxArgs) {
		return fmt.Errorf("usage: %s", o.usage)
	}

	return nil
}

func (o operation) command() *cobra.Command {
	return &cobra.Command{
		Use:   o.usage,
		Short: o.short,
		Args: func(_ *cobra.Command, args []string) error {
			return o.checkArgs(args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				return o.run(cmd.Context(), s.client(), cmd.OutOrStdout(), args)
			})
		},
	}
}

func operationCmds() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(operations))
	for _, op := range operations {
		cmds = append(cmds, op.command())
	}

	return cmds
}

func report(out io.Writer, s *filexfer.Session) {
	if s == nil {
		return
	}

	if s.Complete() {
		fmt.Fprintf(out, "%s: %d bytes\n", s.Path, s.Transferred)
		return
	}

	fmt.Fprintf(out, "%s: %d of %d bytes\n", s.Path, s.Transferred, s.Declared)
}
