// Copyright 2026 Edgewire. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgewire/modbus"
)

var (
	cfgFile string

	// Connection flags
	address   string
	slaveID   uint8
	timeout   time.Duration
	verbose   bool
	logFrames bool

	// Serial line flags
	baudRate int
	dataBits int
	parity   string
	stopBits int

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "modbus-cli",
	Short: "Talk to Modbus devices over TCP or a serial line",
	Long: `modbus-cli reads and writes coils, discrete inputs and registers on a
Modbus device, framed as Modbus TCP or Modbus RTU depending on the address
scheme.

Examples:
  # Read 10 holding registers starting at address 0
  modbus-cli read holding-registers -a 0 -q 10 -A tcp://192.168.1.100:502

  # Read 8 coils over a serial line
  modbus-cli read coils -a 0 -q 8 -A rtu:///dev/ttyUSB0 --rtu-baudrate 9600

  # Write a register
  modbus-cli write register 100 1234 -A tcp://192.168.1.100:502`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if viper.GetBool("verbose") {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.modbus-cli.yaml)")
	rootCmd.PersistentFlags().StringVarP(&address, "address", "A", "tcp://127.0.0.1:502", "device address, e.g. tcp://127.0.0.1:502 or rtu:///dev/ttyUSB0")
	rootCmd.PersistentFlags().Uint8VarP(&slaveID, "slave-id", "s", 1, "slave / unit id")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "response timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&logFrames, "log-frames", false, "log sent and received frames at debug level (shown with --verbose)")
	rootCmd.PersistentFlags().IntVar(&baudRate, "rtu-baudrate", 19200, "symbol rate, e.g. 2400, 9600, 19200, 38400")
	rootCmd.PersistentFlags().IntVar(&dataBits, "rtu-databits", 8, "5, 6, 7 or 8")
	rootCmd.PersistentFlags().StringVar(&parity, "rtu-parity", "E", "N - None, E - Even, O - Odd")
	rootCmd.PersistentFlags().IntVar(&stopBits, "rtu-stopbits", 1, "1 or 2")

	viper.BindPFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".modbus-cli")
	}

	viper.SetEnvPrefix("MODBUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

// newHandler builds the framing/transport pair for the configured address.
func newHandler() (modbus.ClientHandler, error) {
	u, err := url.Parse(viper.GetString("address"))
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	switch u.Scheme {
	case "tcp":
		h := modbus.NewTCPClientHandler(u.Host)
		h.Timeout = viper.GetDuration("timeout")
		h.SetSlave(uint8(viper.GetUint("slave-id")))
		if viper.GetBool("log-frames") {
			h.Logger = frameLogger{}
		}
		return h, nil
	case "rtu":
		h := modbus.NewRTUClientHandler(u.Path)
		h.Timeout = viper.GetDuration("timeout")
		h.BaudRate = viper.GetInt("rtu-baudrate")
		h.DataBits = viper.GetInt("rtu-databits")
		h.Parity = viper.GetString("rtu-parity")
		h.StopBits = viper.GetInt("rtu-stopbits")
		h.SetSlave(uint8(viper.GetUint("slave-id")))
		if viper.GetBool("log-frames") {
			h.Logger = frameLogger{}
		}
		return h, nil
	default:
		return nil, fmt.Errorf("unsupported address scheme %q, use tcp:// or rtu://", u.Scheme)
	}
}

// frameLogger adapts the library's frame logging hook to slog.
type frameLogger struct{}

func (frameLogger) Printf(format string, v ...interface{}) {
	logger.Debug(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}

// withClient connects, runs fn and closes the connection.
func withClient(fn func(client modbus.Client) error) error {
	handler, err := newHandler()
	if err != nil {
		return err
	}
	if err := handler.Connect(); err != nil {
		return err
	}
	defer handler.Close()
	return fn(modbus.NewClient(handler))
}
