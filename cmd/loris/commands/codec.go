package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dalspace/loris/dispatch"
	"github.com/dalspace/loris/fec"
)

func newEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <src> [dst]",
		Short: "Reed-Solomon encode a local file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := localCodec(cmd)
			if err != nil {
				return err
			}

			src := args[0]
			dst := src + dispatch.EncodedSuffix
			if len(args) == 2 {
				dst = args[1]
			}

			if err := dispatch.EncodeFile(codec, src, dst); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s)\n", src, dst, codec.Params())

			return nil
		},
	}
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <src> [dst]",
		Short: "Reed-Solomon decode a local file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := localCodec(cmd)
			if err != nil {
				return err
			}

			src := args[0]
			dst := strings.TrimSuffix(src, dispatch.EncodedSuffix)
			if len(args) == 2 {
				dst = args[1]
			}
			if dst == src {
				return fmt.Errorf("decode: %s has no %s suffix, give a destination", src, dispatch.EncodedSuffix)
			}

			stats, err := dispatch.DecodeFile(codec, src, dst)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s: %d bytes, %d blocks, %d corrected\n",
				src, dst, stats.Length, stats.Blocks, stats.Corrected)

			return nil
		},
	}
}

func localCodec(cmd *cobra.Command) (*fec.Codec, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	return fec.New(cfg.FEC)
}

func newOpcodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "opcodes",
		Short: "List the reserved opcodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, info := range dispatch.Opcodes() {
				fmt.Fprintf(out, "%s  %-18s %s\n", info.Code, info.Name, info.Shape)
			}

			return nil
		},
	}
}
