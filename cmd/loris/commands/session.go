package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dalspace/loris/channel"
	"github.com/dalspace/loris/dispatch"
	"github.com/dalspace/loris/internal/config"
	"github.com/dalspace/loris/link"
	"github.com/dalspace/loris/logger"
)

// session is an open byte channel and the link on top of it.
type session struct {
	cfg  *config.Config
	ch   *channel.Channel
	link *link.Link
}

func openSession(cfg *config.Config) (*session, error) {
	l := logger.GetLogger()

	chOpts := []channel.Option{
		channel.WithBaudRate(cfg.Link.Baud),
		channel.WithRateLimit(cfg.Link.RateLimit),
		channel.WithLogger(l),
	}

	var (
		ch  *channel.Channel
		err error
	)

	if cfg.Link.UsesPipes() {
		if cfg.Link.CreatePipes {
			chOpts = append(chOpts, channel.WithCreatePipes())
		}
		ch, err = channel.OpenPipePair(cfg.Link.RxPipe, cfg.Link.TxPipe, cfg.Link.Address, chOpts...)
	} else {
		ch, err = channel.OpenSerial(cfg.Link.Device, chOpts...)
	}
	if err != nil {
		return nil, err
	}

	lk, err := link.New(ch,
		link.WithFECParams(cfg.FEC),
		link.WithBlockTimeout(cfg.Link.BlockTimeout),
		link.WithPollInterval(cfg.Link.PollInterval),
		link.WithLogger(l),
	)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	return &session{cfg: cfg, ch: ch, link: lk}, nil
}

func (s *session) frontend() link.Frontend {
	return s.link.Frontend(s.cfg.Link.Encoded)
}

func (s *session) client() *dispatch.Client {
	return dispatch.NewClient(s.link, s.cfg.Link.Encoded, confirmer())
}

func (s *session) Close() error {
	return s.ch.Close()
}

// withSession loads the configuration, opens the link and runs fn.
func withSession(cmd *cobra.Command, fn func(*session) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(s)
}

// confirmer asks on the terminal before destructive operations. Without a
// terminal, and without --yes, destructive operations are refused.
func confirmer() dispatch.Confirmer {
	if flags.yes {
		return dispatch.AlwaysConfirm
	}

	if !term.IsTerminal(0) {
		return dispatch.ConfirmFunc(func(context.Context, string) (bool, error) {
			return false, errors.New("no terminal to confirm on, use --yes")
		})
	}

	return dispatch.ConfirmFunc(promptConfirm)
}

func promptConfirm(ctx context.Context, prompt string) (bool, error) {
	var ok bool

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(prompt).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("confirm: %w", err)
	}

	return ok, nil
}
