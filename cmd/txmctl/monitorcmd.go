package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/txmlab/go-txm/monitor"
	"github.com/txmlab/go-txm/scanlog"
)

func monitorCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve the monitoring HTTP API until interrupted",
		RunE: func(*cobra.Command, []string) error {
			m, p, err := setup()
			if err != nil {
				return err
			}
			defer m.Close()

			var opts []monitor.Option
			if p.ScanLog != "" {
				rec, err := scanlog.Open(p.ScanLog)
				if err != nil {
					return err
				}
				defer rec.Close()
				opts = append(opts, monitor.WithScanLog(rec))
			}

			srv := monitor.New(m.Controller, opts...)
			if err := srv.Start(addr); err != nil {
				return err
			}
			defer srv.Close()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8032", "listen address")

	return cmd
}
