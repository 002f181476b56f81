package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"argus/bootstrap"
	"argus/protocol"

	"github.com/spf13/cobra"
)

const (
	workerTransportStdio = "stdio"
	workerTransportRedis = "redis"
)

// newWorkerCmd creates the 'worker' command
func newWorkerCmd() *cobra.Command {
	var (
		transport string
		workerID  int
		once      bool
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run an analysis worker",
		Long: `Run a worker that evaluates one partition per session.

With --transport stdio the worker speaks the protocol on stdin and stdout
and exits after one session; coordinators using the exec transport start
it this way. With --transport redis it attaches to the streams of worker
--id and serves sessions until interrupted (or after one with --once).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Shutdown()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			switch transport {
			case workerTransportStdio:
				logger := app.Sugar.With("partition", os.Getenv("ARGUS_WORKER_PARTITION"))
				conn := protocol.NewStreamWorkerConn(os.Stdin, os.Stdout)
				defer conn.Close()
				return protocol.NewWorker(app.Engine, logger).Serve(ctx, conn)

			case workerTransportRedis:
				if !cmd.Flags().Changed("id") {
					if env := os.Getenv("ARGUS_WORKER_ID"); env != "" {
						if workerID, err = strconv.Atoi(env); err != nil {
							return fmt.Errorf("invalid ARGUS_WORKER_ID %q: %w", env, err)
						}
					}
				}
				if workerID < 0 {
					return fmt.Errorf("--id must not be negative")
				}
				client, err := app.ConnectRedis(ctx)
				if err != nil {
					return err
				}
				worker, err := protocol.AttachRedisWorker(ctx, client, bootstrap.RedisOptions(app.Config), workerID, app.Sugar)
				if err != nil {
					return err
				}
				return worker.Serve(ctx, app.Engine, once)
			}
			return fmt.Errorf("unknown worker transport %q (want stdio or redis)", transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", workerTransportStdio, "Worker transport: stdio or redis")
	cmd.Flags().IntVar(&workerID, "id", 0, "Worker id for the redis transport (or ARGUS_WORKER_ID)")
	cmd.Flags().BoolVar(&once, "once", false, "Exit after one redis session")

	return cmd
}
