package cmd

import (
	"fmt"
	"github.com/ValentinKolb/dTCP/cmd/bench"
	"github.com/ValentinKolb/dTCP/cmd/connect"
	"github.com/ValentinKolb/dTCP/cmd/serve"
	"github.com/ValentinKolb/dTCP/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dtcp",
		Short: "edge-triggered tcp transport engine",
		Long: fmt.Sprintf(`dTCP (v%s)

A single-threaded, edge-triggered epoll transport engine written in Go.
It multiplexes many non-blocking sockets, frames messages with an 18 byte
binary header and reconnects outbound endpoints at a fixed interval.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dTCP",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dTCP v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(connect.ConnectCmd)
	RootCmd.AddCommand(bench.BenchCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
