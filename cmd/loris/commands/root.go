// Package commands implements the loris command tree.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/dalspace/loris/internal/config"
	"github.com/dalspace/loris/logger"
)

// globalFlags are the persistent flags shared by every command. Only flags
// the user actually set override the configuration file.
type globalFlags struct {
	configPath string
	device     string
	rxPipe     string
	txPipe     string
	address    int
	encoded    bool
	logLevel   string
	yes        bool
}

var flags globalFlags

// NewRootCmd builds the loris command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "loris",
		Short:         "Ground-station and satellite link tool",
		Long:          "Serial or named-pipe link with optional Reed-Solomon FEC, remote file transfer and command dispatch.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "path to YAML configuration")
	pf.StringVar(&flags.device, "device", "", "serial device (default "+config.DefaultDevice+")")
	pf.StringVar(&flags.rxPipe, "rx", "", "named pipe to read from")
	pf.StringVar(&flags.txPipe, "tx", "", "named pipe to write to")
	pf.IntVar(&flags.address, "address", 0, "station address; parity decides the pipe open order")
	pf.BoolVar(&flags.encoded, "fec", false, "use the Reed-Solomon front end")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	pf.BoolVarP(&flags.yes, "yes", "y", false, "do not ask before destructive operations")

	root.AddCommand(
		newListenCmd(),
		newShellCmd(),
		newSendCmd(),
		newRecvCmd(),
		newEncodeCmd(),
		newDecodeCmd(),
		newOpcodesCmd(),
	)
	root.AddCommand(operationCmds()...)

	return root
}

// loadConfig loads the configuration file, applies the flags the user set
// and installs the default logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	pf := cmd.Flags()
	if pf.Changed("device") {
		cfg.Link.Device = flags.device
		cfg.Link.RxPipe, cfg.Link.TxPipe = "", ""
	}
	if pf.Changed("rx") {
		cfg.Link.RxPipe = flags.rxPipe
	}
	if pf.Changed("tx") {
		cfg.Link.TxPipe = flags.txPipe
	}
	if pf.Changed("address") {
		cfg.Link.Address = flags.address
	}
	if pf.Changed("fec") {
		cfg.Link.Encoded = flags.encoded
	}
	if pf.Changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	logger.SetDefault(logger.NewSlogWithOptions(logger.Options{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    cmd.ErrOrStderr(),
		AddSource: cfg.Log.AddSource,
	}))

	return cfg, nil
}
