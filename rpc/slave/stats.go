package slave

import (
	"fmt"
	"sort"
	"time"

	"github.com/ValentinKolb/hRPC/rpc/common"
	gometrics "github.com/rcrowley/go-metrics"
)

// stats collects the simulator metrics in its own registry
type stats struct {
	registry    gometrics.Registry
	handled     gometrics.Timer
	events      gometrics.Meter
	malformed   gometrics.Meter
	unsupported gometrics.Meter
}

func newStats() *stats {
	r := gometrics.NewRegistry()
	return &stats{
		registry:    r,
		handled:     gometrics.GetOrRegisterTimer("handler.duration", r),
		events:      gometrics.GetOrRegisterMeter("events.sent", r),
		malformed:   gometrics.GetOrRegisterMeter("requests.malformed", r),
		unsupported: gometrics.GetOrRegisterMeter("requests.unsupported", r),
	}
}

// requests returns the meter of kind
func (st *stats) requests(kind common.MessageKind) gometrics.Meter {
	return gometrics.GetOrRegisterMeter("requests."+kind.String(), st.registry)
}

// logAll writes every metric to the log, sorted by name
func (st *stats) logAll() {
	var lines []string
	st.registry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case gometrics.Meter:
			snap := m.Snapshot()
			if snap.Count() == 0 {
				return
			}
			lines = append(lines, formatMeter(name, snap.Count(), snap.Rate1()))
		case gometrics.Timer:
			snap := m.Snapshot()
			if snap.Count() == 0 {
				return
			}
			lines = append(lines, formatTimer(name, snap.Count(), snap.Mean(), snap.Percentile(0.99)))
		}
	})

	sort.Strings(lines)
	for _, line := range lines {
		Logger.Infof("%s", line)
	}
}

func formatMeter(name string, count int64, rate1 float64) string {
	return fmt.Sprintf("%-36s count=%-8d rate1m=%.2f/s", name, count, rate1)
}

func formatTimer(name string, count int64, mean, p99 float64) string {
	return fmt.Sprintf("%-36s count=%-8d mean=%s p99=%s", name, count,
		time.Duration(mean).Round(time.Microsecond), time.Duration(p99).Round(time.Microsecond))
}
