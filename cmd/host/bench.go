package host

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/hRPC/cmd/util"
	"github.com/ValentinKolb/hRPC/rpc/common"
	"github.com/ValentinKolb/hRPC/rpc/engine"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	benchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Measures request throughput against a coprocessor or the simulator",
		Long: `Runs a set of parallel benchmarks through the engine:
  sync    synchronous get-mode requests
  async   asynchronous get-mode requests, each waited for by its submitter
  mixed   rotating synchronous requests (mac, mode, ps, fw)`,
		Args:    cobra.NoArgs,
		PreRunE: processBenchConfig,
		RunE:    runBench,
	}
	benchThreads = 10
	benchSkip    = make([]string, 0)
)

func init() {
	key := "skip"
	benchCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. sync,mixed)"))
	key = "threads"
	benchCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines issuing requests"))
	key = "csv"
	benchCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	benchThreads = viper.GetInt("threads")
	benchSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

func runBench(cmd *cobra.Command, _ []string) error {
	fmt.Println("Throughput benchmark for the hRPC engine")
	fmt.Println()
	fmt.Println("Configuration:")
	config := util.GetTransportConfig()
	fmt.Println(config.String())
	fmt.Printf("Threads: %d\n", benchThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	ctx := cmd.Context()
	results := make(map[string]testing.BenchmarkResult)

	results["sync"] = benchmark("sync", func() error {
		_, err := rpcClient.GetWifiMode(ctx)
		return err
	})

	results["async"] = benchmark("async", func() error {
		done := make(chan error, 1)
		req := common.Request{Kind: common.KindGetWifiMode}
		err := eng.SubmitAsync(req, func(resp common.Response) {
			done <- resp.Err()
		})
		if err != nil {
			return err
		}
		return <-done
	})

	var mixed atomic.Uint64
	results["mixed"] = benchmark("mixed", func() error {
		var err error
		switch mixed.Add(1) % 4 {
		case 0:
			_, err = rpcClient.GetMACAddress(ctx, common.WifiModeSTA)
		case 1:
			_, err = rpcClient.GetWifiMode(ctx)
		case 2:
			_, err = rpcClient.GetPowerSave(ctx)
		case 3:
			_, err = rpcClient.GetFirmwareVersion(ctx)
		}
		return err
	})

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, config); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	fmt.Println()
	fmt.Println("Engine metrics:")
	eng.WriteMetrics(os.Stdout)
	return nil
}

// benchmark runs op in parallel and prints the result. Requests rejected
// because the transaction table is full are retried and not counted as errors
func benchmark(test string, op func() error) testing.BenchmarkResult {
	result := testing.Benchmark(func(b *testing.B) {
		if shouldSkip(test) {
			return
		}

		b.SetParallelism(benchThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				err := op()
				for errors.Is(err, engine.ErrTableFull) {
					runtime.Gosched()
					err = op()
				}
				if err != nil {
					util.Logger.Warningf("(%s) - request failed: %v", test, err)
				}
			}
		})
	})

	printResult(test, result)
	return result
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range benchSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config common.TransportConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoint", "Codec", "Transport",
		"Threads", "MaxSync", "MaxAsync",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		skipped := "true"

		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			config.Endpoint,
			viper.GetString("codec"),
			viper.GetString("transport"),
			strconv.Itoa(benchThreads),
			strconv.Itoa(viper.GetInt("max-sync")),
			strconv.Itoa(viper.GetInt("max-async")),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
