package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dalspace/loris/link"
)

func newSendCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "send [text...]",
		Short: "Send a raw payload over the link",
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload []byte

			switch {
			case file == "-":
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				payload = data
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				payload = data
			default:
				payload = []byte(strings.Join(args, " "))
			}

			return withSession(cmd, func(s *session) error {
				if err := s.frontend().Send(payload); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "sent %d bytes\n", len(payload))

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "send the content of a file, - for stdin")

	return cmd
}

func newRecvCmd() *cobra.Command {
	var (
		length int
		upTo   bool
		out    string
	)

	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Receive a raw payload from the link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := link.Exactly(length)
			if upTo {
				req = link.AtMost(length)
			}

			return withSession(cmd, func(s *session) error {
				data, err := s.frontend().Recv(req)
				if err != nil {
					return err
				}

				if out != "" {
					return os.WriteFile(out, data, 0o644)
				}
				_, err = cmd.OutOrStdout().Write(data)

				return err
			})
		},
	}

	cmd.Flags().IntVarP(&length, "length", "n", 1, "number of bytes to receive")
	cmd.Flags().BoolVar(&upTo, "up-to", false, "return after the first read instead of waiting for all bytes")
	cmd.Flags().StringVarP(&out, "output", "o", "", "write the payload to a file instead of stdout")

	return cmd
}
