package host

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ValentinKolb/hRPC/cmd/util"
	"github.com/ValentinKolb/hRPC/rpc/client"
	"github.com/ValentinKolb/hRPC/rpc/common"
	"github.com/ValentinKolb/hRPC/rpc/engine"
	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	eng           *engine.Engine
	rpcClient     *client.Client
	metricsServer *http.Server

	// HostCommands represents the host command group
	HostCommands = &cobra.Command{
		Use:                "host",
		Short:              "Talk to a coprocessor (or the simulator) through the engine",
		PersistentPreRunE:  setupEngine,
		PersistentPostRunE: teardownEngine,
	}
)

func init() {
	util.SetupTransportFlags(HostCommands, "localhost:9750")

	key := "max-sync"
	HostCommands.PersistentFlags().Int(key, common.DefaultMaxSync, util.WrapString("Capacity of the synchronous transaction table"))

	key = "max-async"
	HostCommands.PersistentFlags().Int(key, common.DefaultMaxAsync, util.WrapString("Capacity of the asynchronous transaction table"))

	key = "timeout"
	HostCommands.PersistentFlags().Duration(key, common.DefaultTimeout, util.WrapString("Response timeout of every request"))

	key = "metrics-endpoint"
	HostCommands.PersistentFlags().String(key, "", util.WrapString("Serve the engine metrics in Prometheus format on this address under /metrics (e.g. localhost:9751)"))

	HostCommands.AddCommand(macCmd)
	HostCommands.AddCommand(setMacCmd)
	HostCommands.AddCommand(modeCmd)
	HostCommands.AddCommand(setModeCmd)
	HostCommands.AddCommand(psCmd)
	HostCommands.AddCommand(setPsCmd)
	HostCommands.AddCommand(fwCmd)
	HostCommands.AddCommand(wifiStartCmd)
	HostCommands.AddCommand(wifiStopCmd)
	HostCommands.AddCommand(wifiInitCmd)
	HostCommands.AddCommand(wifiDeinitCmd)
	HostCommands.AddCommand(wifiConnectCmd)
	HostCommands.AddCommand(wifiDisconnectCmd)
	HostCommands.AddCommand(scanCmd)
	HostCommands.AddCommand(txPowerCmd)
	HostCommands.AddCommand(setTxPowerCmd)
	HostCommands.AddCommand(heartbeatCmd)
	HostCommands.AddCommand(benchCmd)
}

// setupEngine connects the engine to the configured link
func setupEngine(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	c, err := util.GetCodec()
	if err != nil {
		return err
	}
	t, err := util.GetTransport(util.GetTransportConfig())
	if err != nil {
		return err
	}

	config := common.EngineConfig{
		MaxSync:        viper.GetInt("max-sync"),
		MaxAsync:       viper.GetInt("max-async"),
		DefaultTimeout: viper.GetDuration("timeout"),
	}
	eng = engine.New(config, t, c)
	if err := eng.Init(); err != nil {
		return err
	}
	rpcClient = client.New(eng)

	if endpoint := viper.GetString("metrics-endpoint"); endpoint != "" {
		startMetricsServer(endpoint)
	}
	return nil
}

// teardownEngine stops the metrics server and the engine
func teardownEngine(_ *cobra.Command, _ []string) error {
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		metricsServer.Shutdown(ctx)
	}
	return eng.Deinit()
}

// startMetricsServer serves the engine and process metrics on endpoint
func startMetricsServer(endpoint string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		eng.WriteMetrics(w)
		metrics.WritePrometheus(w, true)
	})
	metricsServer = &http.Server{Addr: endpoint, Handler: mux}

	go func() {
		util.Logger.Infof("Serving metrics on http://%s/metrics", endpoint)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Logger.Errorf("Metrics server failed: %v", err)
		}
	}()
}
