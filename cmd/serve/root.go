package serve

import (
	"context"
	"fmt"
	cmdUtil "github.com/ValentinKolb/dTCP/cmd/util"
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/ValentinKolb/dTCP/rpc/router"
	"github.com/ValentinKolb/dTCP/rpc/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"os"
	"os/signal"
	"syscall"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a dTCP echo server",
		Long:    `Start a listen service that writes every received message back to the connection its correlation id was last seen on. The configuration can be set via command line flags or environment variables. The format of the environment variables is DTCP_<flag> (e.g. DTCP_MAX_CONNECTIONS=64)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	cmdUtil.SetupEngineFlags(ServeCmd)

	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the service will listen (e.g. localhost:8080 for tcp, /tmp/dtcp.sock for unix)"))

	key = "backlog"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Listen backlog (0 uses SOMAXCONN)"))

	key = "max-connections"
	ServeCmd.PersistentFlags().Int(key, common.DefaultMaxConnections, cmdUtil.WrapString("Capacity of the connection registry, further connections are accepted and closed right away"))

	key = "workers"
	ServeCmd.PersistentFlags().Int(key, 4, cmdUtil.WrapString("Number of goroutines consuming inbound messages"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	*serveCmdConfig = *cmdUtil.GetServerConfig()
	if err := serveCmdConfig.Validate(); err != nil {
		return err
	}
	if viper.GetInt("workers") <= 0 {
		return fmt.Errorf("workers must be positive, got %d", viper.GetInt("workers"))
	}

	cmdUtil.Logger.Debugf("Server configuration: %s", serveCmdConfig)
	return nil
}

// run starts the listen service and the echo workers
func run(_ *cobra.Command, _ []string) error {
	t, err := cmdUtil.NewServerTransport(*serveCmdConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	routes := router.New()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return t.Run(gctx)
	})
	for i := 0; i < viper.GetInt("workers"); i++ {
		g.Go(func() error {
			echo(gctx, t, routes)
			return nil
		})
	}
	g.Go(func() error {
		return cmdUtil.ServeMetrics(gctx, viper.GetString("metrics-endpoint"), t.Metrics())
	})

	err = g.Wait()
	s := t.Stats()
	cmdUtil.Logger.Infof("Served %d connections, %d messages in, %d messages out", s.Accepted, s.MessagesIn, s.MessagesOut)
	return err
}

// echo answers normal messages until the inbound channel is closed
func echo(ctx context.Context, t transport.IServerTransport, routes *router.Table) {
	for msg := range t.Inbound() {
		routes.Observe(msg)

		if !msg.IsNormal() {
			cmdUtil.Logger.Debugf("connection %s: %s", msg.Conn, msg.Event)
			continue
		}

		reply, ok := routes.Route(msg.Envelope)
		if !ok {
			reply = common.NewNormalMessage(msg.Conn, msg.Envelope)
		}

		select {
		case t.Outbound() <- reply:
		case <-ctx.Done():
			return
		}
	}
}
