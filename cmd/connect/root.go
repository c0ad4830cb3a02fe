package connect

import (
	"context"
	"encoding/json"
	"fmt"
	cmdUtil "github.com/ValentinKolb/dTCP/cmd/util"
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/ValentinKolb/dTCP/rpc/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var (
	connectCmdConfig = &common.ClientConfig{}
	ConnectCmd       = &cobra.Command{
		Use:   "connect",
		Short: "Send messages to one or more dTCP endpoints",
		Long: `Connect to every endpoint, wait until all of them are connected and send --count messages round robin.
Replies and connection events are printed as they arrive. The environment variables use the format DTCP_<flag> (e.g. DTCP_ENDPOINTS=localhost:8080)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cmdUtil.SetupClientFlags(ConnectCmd)

	key := "count"
	ConnectCmd.Flags().Int(key, 1, cmdUtil.WrapString("Number of messages to send"))

	key = "payload"
	ConnectCmd.Flags().String(key, "hello", cmdUtil.WrapString("Body of every message"))

	key = "protocol"
	ConnectCmd.Flags().Uint16(key, 1, cmdUtil.WrapString("Protocol id written into every header"))

	key = "json"
	ConnectCmd.Flags().Bool(key, false, cmdUtil.WrapString("Print every received message as one JSON object per line"))

	key = "wait"
	ConnectCmd.Flags().Duration(key, 10*time.Second, cmdUtil.WrapString("How long to wait for connections and replies before giving up"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	*connectCmdConfig = *cmdUtil.GetClientConfig()
	if err := connectCmdConfig.Validate(); err != nil {
		return err
	}
	if viper.GetInt("count") < 0 {
		return fmt.Errorf("count must not be negative")
	}
	return nil
}

func run(_ *cobra.Command, _ []string) error {
	t, err := cmdUtil.NewClientTransport(*connectCmdConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, viper.GetDuration("wait"))
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.Run(gctx)
	})
	g.Go(func() error {
		return cmdUtil.ServeMetrics(gctx, viper.GetString("metrics-endpoint"), t.Metrics())
	})

	s := &session{
		t:      t,
		count:  viper.GetInt("count"),
		asJSON: viper.GetBool("json"),
		env: common.Envelope{
			ProtocolID: viper.GetUint16("protocol"),
			Body:       []byte(viper.GetString("payload")),
		},
	}
	g.Go(func() error {
		defer cancel()
		return s.consume(gctx, g)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if s.answered < s.count {
		return fmt.Errorf("%d of %d messages answered", s.answered, s.count)
	}
	return nil
}

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

type session struct {
	t      transport.IClientTransport
	count  int
	asJSON bool
	env    common.Envelope

	connected map[common.ConnID]bool
	started   bool
	answered  int
}

// consume prints every inbound message and starts sending once all endpoints are connected
func (s *session) consume(ctx context.Context, g *errgroup.Group) error {
	s.connected = make(map[common.ConnID]bool)
	if s.count == 0 {
		return nil
	}

	for msg := range s.t.Inbound() {
		switch {
		case msg.IsNormal():
			s.answered++
		case msg.Event == common.EventNewConnection:
			s.connected[msg.Conn] = true
		case msg.Event.IsClosure():
			delete(s.connected, msg.Conn)
		default:
			// a rejected message counts as answered
			s.answered++
		}
		if err := s.print(msg); err != nil {
			return err
		}

		if !s.started && len(s.connected) == s.t.Endpoints() {
			s.started = true
			g.Go(func() error {
				s.send(ctx)
				return nil
			})
		}
		if s.answered >= s.count {
			return nil
		}
	}
	return nil
}

// print writes msg to stdout
func (s *session) print(msg common.Message) error {
	if s.asJSON {
		b, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
		fmt.Println(string(b))
		return nil
	}
	if msg.IsNormal() {
		fmt.Printf("%s -> %q\n", msg, msg.Envelope.Body)
		return nil
	}
	fmt.Println(msg)
	return nil
}

// send writes count messages round robin over the endpoint slots
func (s *session) send(ctx context.Context) {
	for i := 0; i < s.count; i++ {
		env := s.env
		env.Correlation = uint64(i + 1)
		msg := common.NewNormalMessage(common.ConnID(i%s.t.Endpoints()), env)

		select {
		case s.t.Outbound() <- msg:
		case <-ctx.Done():
			return
		}
	}
}
