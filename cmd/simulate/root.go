package simulate

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/hRPC/cmd/util"
	"github.com/ValentinKolb/hRPC/rpc/common"
	"github.com/ValentinKolb/hRPC/rpc/slave"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	simConfig   = &common.SimulatorConfig{}
	SimulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run the coprocessor simulator",
		Long: `Run a coprocessor simulator that accepts host connections and answers requests like the firmware would.
The configuration can be set via command line flags or environment variables. The format of the environment variables is HRPC_<flag> (e.g. HRPC_WORKERS=8)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cmdUtil.SetupTransportFlags(SimulateCmd, "0.0.0.0:9750")

	key := "workers"
	SimulateCmd.PersistentFlags().Int(key, slave.DefaultWorkersPerConn, cmdUtil.WrapString("Requests handled concurrently per connection, responses may be sent out of order when larger than one"))

	key = "heartbeat"
	SimulateCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("Send heartbeat events at this interval on every new connection (0 waits for a heartbeat request)"))

	key = "response-delay"
	SimulateCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("Artificial processing time of every request"))

	key = "stats-interval"
	SimulateCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("Log the simulator metrics at this interval (0 disables it)"))

	key = "fw-version"
	SimulateCmd.PersistentFlags().String(key, "1.0.0", cmdUtil.WrapString("Firmware version reported to the host (major.minor.patch)"))
}

// processConfig reads the flags and environment variables into the simulator configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	fw, err := parseVersion(viper.GetString("fw-version"))
	if err != nil {
		return err
	}

	simConfig.Transport = cmdUtil.GetTransportConfig()
	simConfig.WorkersPerConn = viper.GetInt("workers")
	simConfig.Heartbeat = viper.GetDuration("heartbeat")
	simConfig.ResponseDelay = viper.GetDuration("response-delay")
	simConfig.StatsInterval = viper.GetDuration("stats-interval")
	simConfig.FwVersion = fw
	return nil
}

// run serves the simulator until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	c, err := cmdUtil.GetCodec()
	if err != nil {
		return err
	}
	l, err := cmdUtil.GetListener(simConfig.Transport)
	if err != nil {
		return err
	}
	if _, err := l.Listen(); err != nil {
		return err
	}

	sim := slave.New(*simConfig, c)
	defer sim.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		cmdUtil.Logger.Infof("Received %s, shutting down", sig)
		l.Close()
	}()

	return sim.Serve(l)
}

// parseVersion parses major.minor.patch
func parseVersion(s string) (common.FwVersionPayload, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return common.FwVersionPayload{}, fmt.Errorf("invalid firmware version %q (expected major.minor.patch)", s)
	}

	var nums [3]uint32
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return common.FwVersionPayload{}, fmt.Errorf("invalid firmware version %q: %w", s, err)
		}
		nums[i] = uint32(n)
	}
	return common.FwVersionPayload{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}
