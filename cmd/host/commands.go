package host

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ValentinKolb/hRPC/cmd/util"
	"github.com/ValentinKolb/hRPC/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	heartbeatCount int

	macCmd = &cobra.Command{
		Use:   "mac [sta|ap]",
		Short: "Prints the MAC address of an interface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := common.ParseWifiMode(args[0])
			if err != nil {
				return err
			}
			mac, err := rpcClient.GetMACAddress(cmd.Context(), mode)
			if err != nil {
				return err
			}
			fmt.Println(mac)
			return nil
		},
	}
	setMacCmd = &cobra.Command{
		Use:   "set-mac [sta|ap] [mac]",
		Short: "Sets the MAC address of an interface",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := common.ParseWifiMode(args[0])
			if err != nil {
				return err
			}
			mac, err := net.ParseMAC(args[1])
			if err != nil {
				return err
			}
			if err := rpcClient.SetMACAddress(cmd.Context(), mode, mac); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	modeCmd = &cobra.Command{
		Use:   "mode",
		Short: "Prints the Wi-Fi mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := rpcClient.GetWifiMode(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(mode)
			return nil
		},
	}
	setModeCmd = &cobra.Command{
		Use:   "set-mode [null|sta|ap|apsta]",
		Short: "Sets the Wi-Fi mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := common.ParseWifiMode(args[0])
			if err != nil {
				return err
			}
			if err := rpcClient.SetWifiMode(cmd.Context(), mode); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	psCmd = &cobra.Command{
		Use:   "ps",
		Short: "Prints the power save type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := rpcClient.GetPowerSave(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(ps)
			return nil
		},
	}
	setPsCmd = &cobra.Command{
		Use:   "set-ps [0|1|2]",
		Short: "Sets the power save type (0 none, 1 min modem, 2 max modem)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("power save type must be a number: %w", err)
			}
			if err := rpcClient.SetPowerSave(cmd.Context(), uint32(ps)); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	fwCmd = &cobra.Command{
		Use:   "fw",
		Short: "Prints the coprocessor firmware version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fw, err := rpcClient.GetFirmwareVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(fw)
			return nil
		},
	}
	wifiStartCmd = &cobra.Command{
		Use:   "wifi-start",
		Short: "Starts Wi-Fi on the coprocessor and waits for the connected event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return awaitEvent(cmd, common.EventStaConnected, rpcClient.WifiStart)
		},
	}
	wifiStopCmd = &cobra.Command{
		Use:   "wifi-stop",
		Short: "Stops Wi-Fi on the coprocessor and waits for the disconnected event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return awaitEvent(cmd, common.EventStaDisconnected, rpcClient.WifiStop)
		},
	}
	wifiInitCmd = &cobra.Command{
		Use:   "wifi-init",
		Short: "Loads the radio driver on the coprocessor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(cmd, rpcClient.WifiInit)
		},
	}
	wifiDeinitCmd = &cobra.Command{
		Use:   "wifi-deinit",
		Short: "Stops the radio and unloads its driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(cmd, rpcClient.WifiDeinit)
		},
	}
	wifiConnectCmd = &cobra.Command{
		Use:   "wifi-connect",
		Short: "Connects the station and waits for the connected event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return awaitEvent(cmd, common.EventStaConnected, rpcClient.WifiConnect)
		},
	}
	wifiDisconnectCmd = &cobra.Command{
		Use:   "wifi-disconnect",
		Short: "Disconnects the station and waits for the disconnected event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return awaitEvent(cmd, common.EventStaDisconnected, rpcClient.WifiDisconnect)
		},
	}
	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Starts a scan and waits for the scan done event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return awaitEvent(cmd, common.EventStaScanDone, rpcClient.WifiScanStart)
		},
	}
	txPowerCmd = &cobra.Command{
		Use:   "tx-power",
		Short: "Prints the maximum transmit power (0.25 dBm units)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			power, err := rpcClient.GetMaxTxPower(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(power)
			return nil
		},
	}
	setTxPowerCmd = &cobra.Command{
		Use:   "set-tx-power [power]",
		Short: "Sets the maximum transmit power (0.25 dBm units, 8 to 84)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			power, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("power must be a number: %w", err)
			}
			return runSimple(cmd, func(ctx context.Context) error {
				return rpcClient.SetMaxTxPower(ctx, int32(power))
			})
		},
	}
	heartbeatCmd = &cobra.Command{
		Use:   "heartbeat [interval-sec]",
		Short: "Enables heartbeat events and prints them until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE:  runHeartbeat,
	}
)

func init() {
	heartbeatCmd.Flags().IntVar(&heartbeatCount, "count", 0, util.WrapString("Stop after this many heartbeats (0 runs until interrupted)"))
}

// runSimple runs a call without a result
func runSimple(cmd *cobra.Command, call func(ctx context.Context) error) error {
	if err := call(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("done")
	return nil
}

// awaitEvent subscribes to kind, runs call and prints the first event of that kind
func awaitEvent(cmd *cobra.Command, kind common.EventKind, call func(ctx context.Context) error) error {
	events := make(chan common.Event, 1)
	if err := rpcClient.OnEvent(kind, func(evt common.Event) {
		select {
		case events <- evt:
		default:
		}
	}); err != nil {
		return err
	}
	if err := call(cmd.Context()); err != nil {
		return err
	}

	select {
	case evt := <-events:
		fmt.Printf("%s (status %s)\n", evt.Kind, evt.Status)
		return nil
	case <-time.After(viper.GetDuration("timeout")):
		return fmt.Errorf("no %s event received", kind)
	}
}

func runHeartbeat(cmd *cobra.Command, args []string) error {
	interval, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("interval must be a number: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	beats := make(chan uint32, 16)
	if err := rpcClient.OnHeartbeat(func(beat uint32) {
		select {
		case beats <- beat:
		default:
		}
	}); err != nil {
		return err
	}
	if err := rpcClient.ConfigHeartbeat(ctx, true, uint32(interval)); err != nil {
		return err
	}

wait:
	for received := 0; heartbeatCount == 0 || received < heartbeatCount; received++ {
		select {
		case beat := <-beats:
			fmt.Printf("heartbeat %d\n", beat)
		case <-ctx.Done():
			break wait
		}
	}

	// the interrupted context cannot carry the disable request
	return rpcClient.ConfigHeartbeat(cmd.Context(), false, 0)
}
