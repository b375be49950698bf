package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Engine configuration
// --------------------------------------------------------------------------

const (
	// DefaultMaxSync is the default number of simultaneous synchronous requests
	DefaultMaxSync = 5
	// DefaultMaxAsync is the default number of simultaneous asynchronous requests
	DefaultMaxAsync = 5
	// DefaultTimeout is used for requests that do not set their own timeout
	DefaultTimeout = 5 * time.Second
	// DefaultPollInterval is how long the pumps sleep while the engine is inactive
	DefaultPollInterval = 10 * time.Millisecond
)

// EngineConfig holds the construction time parameters of an engine
type EngineConfig struct {
	// Capacity of the synchronous transaction table
	MaxSync int
	// Capacity of the asynchronous transaction table
	MaxAsync int
	// Response timeout for requests without an explicit timeout
	DefaultTimeout time.Duration
	// Bounded sleep of the pumps while the engine is not ready
	PollInterval time.Duration
}

// DefaultEngineConfig returns the configuration used by the coprocessor firmware defaults
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxSync:        DefaultMaxSync,
		MaxAsync:       DefaultMaxAsync,
		DefaultTimeout: DefaultTimeout,
		PollInterval:   DefaultPollInterval,
	}
}

// WithDefaults returns a copy of c where all unset fields carry their default value
func (c EngineConfig) WithDefaults() EngineConfig {
	if c.MaxSync <= 0 {
		c.MaxSync = DefaultMaxSync
	}
	if c.MaxAsync <= 0 {
		c.MaxAsync = DefaultMaxAsync
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// String returns a formatted string representation of the configuration
func (c *EngineConfig) String() string {
	var sb strings.Builder
	addSection(&sb, "Engine")
	addField(&sb, "Max Sync Requests", strconv.Itoa(c.MaxSync))
	addField(&sb, "Max Async Requests", strconv.Itoa(c.MaxAsync))
	addField(&sb, "Default Timeout", c.DefaultTimeout.String())
	addField(&sb, "Poll Interval", c.PollInterval.String())
	return sb.String()
}

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

// SocketConf holds socket level options
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds tcp specific options
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// TransportConfig describes how to reach the coprocessor (or its bridge)
type TransportConfig struct {
	// Endpoint to connect to / listen on (host:port or socket path)
	Endpoint string
	// Write deadline for a single frame, 0 disables the deadline
	WriteTimeout time.Duration
	// Connection attempts when opening or reconnecting, at least one
	RetryCount int
	SocketConf
	TCPConf
}

// String returns a formatted string representation of the configuration
func (c *TransportConfig) String() string {
	var sb strings.Builder
	addSection(&sb, "Transport")
	addField(&sb, "Endpoint", c.Endpoint)
	addField(&sb, "Write Timeout", c.WriteTimeout.String())
	addField(&sb, "Connect Attempts", strconv.Itoa(c.RetryCount))
	addField(&sb, "Write Buffer", fmt.Sprintf("%d bytes", c.WriteBufferSize))
	addField(&sb, "Read Buffer", fmt.Sprintf("%d bytes", c.ReadBufferSize))
	addField(&sb, "TCP No Delay", strconv.FormatBool(c.TCPNoDelay))
	addField(&sb, "TCP Keep Alive", fmt.Sprintf("%d sec", c.TCPKeepAliveSec))
	return sb.String()
}

// --------------------------------------------------------------------------
// Simulator configuration
// --------------------------------------------------------------------------

// SimulatorConfig configures the coprocessor simulator
type SimulatorConfig struct {
	Transport TransportConfig
	// Concurrent request handlers per connection
	WorkersPerConn int
	// Artificial processing delay per request
	ResponseDelay time.Duration
	// Heartbeat interval started on every new connection, 0 waits for a heartbeat request
	Heartbeat time.Duration
	// Interval for logging the simulator metrics, 0 disables it
	StatsInterval time.Duration
	// Firmware version reported to the host
	FwVersion FwVersionPayload
}

// String returns a formatted string representation of the configuration
func (c *SimulatorConfig) String() string {
	var sb strings.Builder
	addSection(&sb, "Simulator")
	addField(&sb, "Workers Per Conn", strconv.Itoa(c.WorkersPerConn))
	addField(&sb, "Response Delay", c.ResponseDelay.String())
	addField(&sb, "Heartbeat", c.Heartbeat.String())
	addField(&sb, "Stats Interval", c.StatsInterval.String())
	addField(&sb, "Firmware Version", c.FwVersion.String())
	sb.WriteString(c.Transport.String())
	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func addSection(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
}

func addField(sb *strings.Builder, name, value string) {
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
}
