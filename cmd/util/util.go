package util

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/ValentinKolb/dTCP/rpc/transport"
	"github.com/ValentinKolb/dTCP/rpc/transport/tcp"
	"github.com/ValentinKolb/dTCP/rpc/transport/unix"
	"github.com/VictoriaMetrics/metrics"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

var Logger = logger.GetLogger("cmd")

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Flags
// --------------------------------------------------------------------------

// SetupEngineFlags adds the reactor and socket flags shared by every service command
func SetupEngineFlags(cmd *cobra.Command) {
	key := "max-message-size"
	cmd.PersistentFlags().Int(key, 0, WrapString("Largest body of a single message in bytes (0 uses the wire limit of 1048575)"))

	key = "max-queue-depth"
	cmd.PersistentFlags().Int(key, common.DefaultMaxQueueDepth, WrapString("How many messages may wait in the outbound queue of one connection before writes are rejected with QueueFull"))

	key = "poll-timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultPollTimeout, WrapString("How long the reactor waits for readiness after an idle iteration"))

	key = "channel-size"
	cmd.PersistentFlags().Int(key, common.DefaultChannelSize, WrapString("Capacity of the inbound and outbound message channels"))

	key = "batch-size"
	cmd.PersistentFlags().Int(key, common.DefaultBatchSize, WrapString("Maximum number of outbound messages taken per reactor iteration"))

	key = "deliver-retries"
	cmd.PersistentFlags().Int(key, common.DefaultDeliverRetries, WrapString("Non-blocking delivery attempts on a full inbound channel before the reactor blocks"))

	key = "deliver-backoff"
	cmd.PersistentFlags().Duration(key, common.DefaultDeliverBackoff, WrapString("Sleep between two delivery attempts"))

	key = "read-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("Kernel receive buffer size in KB (0 keeps the OS default)"))

	key = "write-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("Kernel send buffer size in KB (0 keeps the OS default)"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "metrics-endpoint"
	cmd.PersistentFlags().String(key, "", WrapString("Optional address (e.g. localhost:9100) to expose Prometheus metrics on /metrics"))
}

// SetupClientFlags adds the connect service flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	SetupEngineFlags(cmd)

	key := "endpoints"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("Comma-separated list of endpoints to connect to (host:port for tcp, socket paths for unix)"))

	key = "connect-timeout"
	cmd.PersistentFlags().Duration(key, common.DefaultConnectTimeout, WrapString("Timeout of a single connect attempt"))

	key = "reconnect-interval"
	cmd.PersistentFlags().Duration(key, common.DefaultReconnectInterval, WrapString("Fixed interval between two connect attempts on the same endpoint"))
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// InitConfig loads .env files and binds environment variables with the DTCP_ prefix
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dtcp")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper and initializes the loggers
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}

// GetEngineConf reads the engine configuration from viper
func GetEngineConf() common.EngineConf {
	return common.EngineConf{
		MaxMessageSize: viper.GetInt("max-message-size"),
		MaxQueueDepth:  viper.GetInt("max-queue-depth"),
		PollTimeout:    viper.GetDuration("poll-timeout"),
		ChannelSize:    viper.GetInt("channel-size"),
		BatchSize:      viper.GetInt("batch-size"),
		DeliverRetries: viper.GetInt("deliver-retries"),
		DeliverBackoff: viper.GetDuration("deliver-backoff"),
	}
}

func getSocketConf() common.SocketConf {
	return common.SocketConf{
		ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
		WriteBufferSize: viper.GetInt("write-buffer") * 1024,
	}
}

// GetServerConfig reads the listen service configuration from viper
func GetServerConfig() *common.ServerConfig {
	return &common.ServerConfig{
		Transport: common.ServerTransportConfig{
			Endpoint:   viper.GetString("endpoint"),
			Backlog:    viper.GetInt("backlog"),
			SocketConf: getSocketConf(),
			TCPConf:    common.TCPConf{TCPNoDelay: viper.GetBool("tcp-nodelay")},
		},
		Engine:         GetEngineConf(),
		MaxConnections: viper.GetInt("max-connections"),
		LogLevel:       viper.GetString("log-level"),
	}
}

// GetClientConfig reads the connect service configuration from viper
func GetClientConfig() *common.ClientConfig {
	var endpoints []string
	for _, ep := range strings.Split(viper.GetString("endpoints"), ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			endpoints = append(endpoints, ep)
		}
	}

	return &common.ClientConfig{
		Transport: common.ClientTransportConfig{
			Endpoints:  endpoints,
			SocketConf: getSocketConf(),
			TCPConf:    common.TCPConf{TCPNoDelay: viper.GetBool("tcp-nodelay")},
		},
		Engine:            GetEngineConf(),
		ConnectTimeout:    viper.GetDuration("connect-timeout"),
		ReconnectInterval: viper.GetDuration("reconnect-interval"),
		LogLevel:          viper.GetString("log-level"),
	}
}

// --------------------------------------------------------------------------
// Transports
// --------------------------------------------------------------------------

// NewServerTransport creates the listen service of the configured transport
func NewServerTransport(config common.ServerConfig) (transport.IServerTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPServerTransport(config)
	case "unix":
		return unix.NewUnixServerTransport(config)
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// NewClientTransport creates the connect service of the configured transport
func NewClientTransport(config common.ClientConfig) (transport.IClientTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPClientTransport(config)
	case "unix":
		return unix.NewUnixClientTransport(config)
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// --------------------------------------------------------------------------
// Metrics endpoint
// --------------------------------------------------------------------------

// WriteMetrics writes all sets plus the process metrics in Prometheus text format
func WriteMetrics(w io.Writer, sets ...*metrics.Set) {
	for _, s := range sets {
		s.WritePrometheus(w)
	}
	metrics.WriteProcessMetrics(w)
}

// ServeMetrics exposes the sets on addr/metrics until ctx is done.
// An empty addr disables the endpoint.
func ServeMetrics(ctx context.Context, addr string, sets ...*metrics.Set) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		WriteMetrics(w, sets...)
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	Logger.Infof("Serving metrics on http://%s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics endpoint: %w", err)
	}
	return nil
}
