package bench

import (
	"context"
	"encoding/binary"
	"fmt"
	cmdUtil "github.com/ValentinKolb/dTCP/cmd/util"
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/ValentinKolb/dTCP/rpc/transport"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// stampSize is the prefix of every body holding the send time
const stampSize = 8

var (
	benchCmdConfig = &common.ClientConfig{}
	BenchCmd       = &cobra.Command{
		Use:   "bench",
		Short: "Measure round trip latency against dTCP echo servers",
		Long: `Keep --inflight messages in flight on every endpoint for --duration and report round trip latencies.
The endpoints must echo every message back (see dtcp serve).`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cmdUtil.SetupClientFlags(BenchCmd)

	key := "duration"
	BenchCmd.Flags().Duration(key, 10*time.Second, cmdUtil.WrapString("How long to send messages once all endpoints are connected"))

	key = "size"
	BenchCmd.Flags().Int(key, 64, cmdUtil.WrapString("Body size of every message in bytes (at least 8)"))

	key = "inflight"
	BenchCmd.Flags().Int(key, 16, cmdUtil.WrapString("Messages in flight per endpoint"))

	key = "connect-wait"
	BenchCmd.Flags().Duration(key, 10*time.Second, cmdUtil.WrapString("How long to wait for all endpoints to connect"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	*benchCmdConfig = *cmdUtil.GetClientConfig()
	if err := benchCmdConfig.Validate(); err != nil {
		return err
	}

	size, inflight := viper.GetInt("size"), viper.GetInt("inflight")
	if size < stampSize || size > benchCmdConfig.Engine.MaxMessageSize {
		return fmt.Errorf("size must be in [%d, %d], got %d", stampSize, benchCmdConfig.Engine.MaxMessageSize, size)
	}
	if inflight <= 0 {
		return fmt.Errorf("inflight must be positive, got %d", inflight)
	}
	// every reply triggers exactly one send, the outbound channel must hold all of them
	if total := inflight * len(benchCmdConfig.Transport.Endpoints); total > benchCmdConfig.Engine.ChannelSize {
		return fmt.Errorf("%d messages in flight exceed the channel size %d", total, benchCmdConfig.Engine.ChannelSize)
	}
	return nil
}

func run(_ *cobra.Command, _ []string) error {
	t, err := cmdUtil.NewClientTransport(*benchCmdConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Println("Latency benchmark for dTCP endpoints")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(benchCmdConfig.String())
	fmt.Printf("Duration: %s, Size: %d bytes, In flight: %d per endpoint\n", viper.GetDuration("duration"), viper.GetInt("size"), viper.GetInt("inflight"))
	fmt.Println()

	b := newBench(t, viper.GetInt("size"), viper.GetInt("inflight"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.Run(gctx)
	})
	g.Go(func() error {
		return cmdUtil.ServeMetrics(gctx, viper.GetString("metrics-endpoint"), t.Metrics())
	})
	g.Go(func() error {
		defer cancel()
		return b.loop(gctx, viper.GetDuration("connect-wait"), viper.GetDuration("duration"))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	b.report(os.Stdout)
	return nil
}

// --------------------------------------------------------------------------
// Load generator
// --------------------------------------------------------------------------

type bench struct {
	t        transport.IClientTransport
	size     int
	inflight int

	origin  time.Time
	latency gometrics.Timer
	errors  gometrics.Counter
	drops   gometrics.Counter
	elapsed time.Duration
}

func newBench(t transport.IClientTransport, size, inflight int) *bench {
	return &bench{
		t:        t,
		size:     size,
		inflight: inflight,
		origin:   time.Now(),
		latency:  gometrics.NewTimer(),
		errors:   gometrics.NewCounter(),
		drops:    gometrics.NewCounter(),
	}
}

// message builds a body stamped with the current time
func (b *bench) message(id common.ConnID, seq uint64) common.Message {
	body := make([]byte, b.size)
	binary.LittleEndian.PutUint64(body, uint64(time.Since(b.origin)))
	return common.NewNormalMessage(id, common.Envelope{Correlation: seq, ProtocolID: 1, Body: body})
}

// loop waits for all endpoints, then answers every reply with a new message until duration is over
func (b *bench) loop(ctx context.Context, connectWait, duration time.Duration) error {
	connected := 0
	connectDeadline := time.NewTimer(connectWait)
	defer connectDeadline.Stop()

	var (
		stopAt  <-chan time.Time
		started time.Time
		seq     uint64
		running bool
	)

	send := func(id common.ConnID) bool {
		seq++
		select {
		case b.t.Outbound() <- b.message(id, seq):
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-connectDeadline.C:
			if !running {
				return fmt.Errorf("only %d of %d endpoints connected within %s", connected, b.t.Endpoints(), connectWait)
			}
		case <-stopAt:
			b.elapsed = time.Since(started)
			return nil
		case msg, ok := <-b.t.Inbound():
			if !ok {
				return nil
			}

			switch {
			case msg.IsNormal():
				if len(msg.Envelope.Body) >= stampSize {
					sent := time.Duration(binary.LittleEndian.Uint64(msg.Envelope.Body))
					b.latency.Update(time.Since(b.origin) - sent)
				}
				if !send(msg.Conn) {
					return nil
				}
			case msg.Event == common.EventNewConnection:
				connected++
			case msg.Event.IsClosure():
				connected--
				b.drops.Inc(1)
				cmdUtil.Logger.Warningf("endpoint %d dropped: %s", msg.Conn.Index(), msg.Event)
			default:
				// the message is lost, its slot in flight with it
				b.errors.Inc(1)
			}

			if !running && connected == b.t.Endpoints() {
				running = true
				started = time.Now()
				stopAt = time.After(duration)
				for i := 0; i < b.t.Endpoints(); i++ {
					for j := 0; j < b.inflight; j++ {
						if !send(common.ConnID(i)) {
							return nil
						}
					}
				}
			}
		}
	}
}

// report prints the latency distribution and the throughput
func (b *bench) report(w io.Writer) {
	snap := b.latency.Snapshot()
	if snap.Count() == 0 {
		fmt.Fprintln(w, "no replies received")
		return
	}

	ps := snap.Percentiles([]float64{0.5, 0.9, 0.99, 0.999})
	elapsed := b.elapsed
	if elapsed <= 0 {
		elapsed = time.Since(b.origin)
	}

	fmt.Fprintf(w, "%-12s%d\n", "replies", snap.Count())
	fmt.Fprintf(w, "%-12s%.0f msg/sec\n", "throughput", float64(snap.Count())/elapsed.Seconds())
	fmt.Fprintf(w, "%-12s%s\n", "mean", time.Duration(snap.Mean()))
	fmt.Fprintf(w, "%-12s%s\n", "min", time.Duration(snap.Min()))
	fmt.Fprintf(w, "%-12s%s\n", "p50", time.Duration(ps[0]))
	fmt.Fprintf(w, "%-12s%s\n", "p90", time.Duration(ps[1]))
	fmt.Fprintf(w, "%-12s%s\n", "p99", time.Duration(ps[2]))
	fmt.Fprintf(w, "%-12s%s\n", "p99.9", time.Duration(ps[3]))
	fmt.Fprintf(w, "%-12s%s\n", "max", time.Duration(snap.Max()))
	fmt.Fprintf(w, "%-12s%d rejected, %d dropped connections\n", "errors", b.errors.Count(), b.drops.Count())
}
