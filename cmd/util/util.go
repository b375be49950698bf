package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/hRPC/rpc/codec"
	"github.com/ValentinKolb/hRPC/rpc/common"
	"github.com/ValentinKolb/hRPC/rpc/slave"
	"github.com/ValentinKolb/hRPC/rpc/transport"
	"github.com/ValentinKolb/hRPC/rpc/transport/base"
	"github.com/ValentinKolb/hRPC/rpc/transport/pipe"
	"github.com/ValentinKolb/hRPC/rpc/transport/tcp"
	"github.com/ValentinKolb/hRPC/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger("cmd")

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

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

// SetupTransportFlags adds the link flags shared by the host and simulate commands
func SetupTransportFlags(cmd *cobra.Command, defaultEndpoint string) {
	key := "endpoint"
	cmd.PersistentFlags().String(key, defaultEndpoint, WrapString("Address of the link: host:port for tcp, a socket path for unix"))

	key = "transport-write-timeout"
	cmd.PersistentFlags().Duration(key, 2*time.Second, WrapString("Write deadline for a single frame (0 disables it)"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to try connecting before giving up"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 64, WrapString("The size of the socket write buffer (in KB)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 64, WrapString("The size of the socket read buffer (in KB)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (tcp only)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval in seconds (tcp only)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time in seconds (tcp only)"))
}

// InitConfig loads .env files and makes every flag settable as HRPC_<FLAG>
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("hrpc")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper and applies the log level
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}

// GetTransportConfig reads the link configuration from viper
func GetTransportConfig() common.TransportConfig {
	return common.TransportConfig{
		Endpoint:     viper.GetString("endpoint"),
		WriteTimeout: viper.GetDuration("transport-write-timeout"),
		RetryCount:   viper.GetInt("transport-retries"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		},
	}
}

// GetCodec creates the codec selected with --codec
func GetCodec() (codec.ICodec, error) {
	return codec.ByName(viper.GetString("codec"))
}

// GetTransport creates the host side transport selected with --transport.
// The pipe transport runs a simulator inside this process
func GetTransport(config common.TransportConfig) (transport.ITransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPTransport(config), nil
	case "unix":
		return unix.NewUnixTransport(config), nil
	case "pipe":
		c, err := GetCodec()
		if err != nil {
			return nil, err
		}
		t, conn := pipe.New(config.WriteTimeout)
		sim := slave.New(common.SimulatorConfig{
			WorkersPerConn: slave.DefaultWorkersPerConn,
			FwVersion:      common.FwVersionPayload{Major: 1},
		}, c)
		go func() {
			sim.ServeConn(conn)
			sim.Close()
		}()
		return t, nil
	default:
		return nil, fmt.Errorf("invalid transport %s (expected tcp, unix or pipe)", viper.GetString("transport"))
	}
}

// GetListener creates the coprocessor side listener selected with --transport
func GetListener(config common.TransportConfig) (*base.Listener, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPListener(config), nil
	case "unix":
		return unix.NewUnixListener(config), nil
	default:
		return nil, fmt.Errorf("invalid transport %s (expected tcp or unix)", viper.GetString("transport"))
	}
}
