package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dalspace/loris/dispatch"
	"github.com/dalspace/loris/hardware"
	"github.com/dalspace/loris/internal/metrics"
	"github.com/dalspace/loris/logger"
)

func newListenCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Serve remote requests until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withSession(cmd, func(s *session) error {
				if cmd.Flags().Changed("metrics-addr") {
					s.cfg.Metrics.Addr = metricsAddr
				}

				ls, d, err := s.listener()
				if err != nil {
					return err
				}

				if s.cfg.Metrics.Addr != "" {
					srv, err := s.serveMetrics(d)
					if err != nil {
						return err
					}
					defer shutdownServer(srv)
				}

				return ls.Run(ctx)
			})
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

// listener builds the dispatcher for the local station and a listener
// serving it on the session link.
func (s *session) listener() (*dispatch.Listener, *dispatch.Dispatcher, error) {
	l := logger.GetLogger()

	d, err := dispatch.New(hardware.NewSystem(s.cfg.Hardware, l),
		dispatch.WithStorageRoot(s.cfg.Storage.Root),
		dispatch.WithCodec(s.link.Codec()),
		dispatch.WithLogger(l),
	)
	if err != nil {
		return nil, nil, err
	}

	ls := dispatch.NewListener(d, s.link, s.cfg.Link.Encoded)
	ls.SetPollInterval(s.cfg.Link.PollInterval)

	return ls, d, nil
}

func (s *session) serveMetrics(d *dispatch.Dispatcher) (*http.Server, error) {
	reg := metrics.New()
	if err := reg.RegisterChannel(s.ch.Metrics()); err != nil {
		return nil, err
	}
	if err := reg.RegisterLink(s.link.Metrics()); err != nil {
		return nil, err
	}
	if err := reg.RegisterDispatcher(d); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(s.cfg.Metrics.Path, reg.Handler())

	srv := &http.Server{
		Addr:              s.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics: serving", "addr", srv.Addr, "path", s.cfg.Metrics.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics: server failed", "error", err)
		}
	}()

	return srv, nil
}

func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
}
