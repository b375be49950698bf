package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/hRPC/cmd/host"
	"github.com/ValentinKolb/hRPC/cmd/simulate"
	"github.com/ValentinKolb/hRPC/cmd/util"
	"github.com/ValentinKolb/hRPC/rpc/codec"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "hrpc",
		Short: "host to coprocessor RPC engine",
		Long: fmt.Sprintf(`hRPC (v%s)

Request/response correlation and event dispatch for a host talking
to a network coprocessor over a single framed link. Includes a
coprocessor simulator for development without hardware.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of hRPC",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hRPC v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(simulate.SimulateCmd)
	RootCmd.AddCommand(host.HostCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "codec"
	RootCmd.PersistentFlags().String(key, "proto", util.WrapString(fmt.Sprintf("codec to use (%s)", strings.Join(codec.Names, ", "))))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix, or pipe for an in-process simulator)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("level at which logs will be output (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
