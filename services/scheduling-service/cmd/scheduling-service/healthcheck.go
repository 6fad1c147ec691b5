package main

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/config"
	"github.com/md-rashed-zaman/clinicsched/libs/grpcx"
	"github.com/spf13/cobra"
)

// newHealthcheckCommand probes the gRPC health service, for container health checks.
func newHealthcheckCommand() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Exit non-zero unless the running service reports SERVING",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = "127.0.0.1:" + config.String("GRPC_PORT", "9095")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			service := config.String("SERVICE_NAME", defaultServiceName)
			if err := grpcx.CheckHealth(ctx, addr, service); err != nil {
				return fmt.Errorf("healthcheck %s: %w", addr, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "SERVING")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gRPC address (default 127.0.0.1:$GRPC_PORT)")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "probe timeout")
	return cmd
}
