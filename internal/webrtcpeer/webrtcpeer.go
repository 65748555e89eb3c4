// Package webrtcpeer builds the pion PeerConnection the probe uses to prove a
// full offer/answer/candidate exchange through the relay.
package webrtcpeer

import (
	"io"

	"github.com/pion/logging"
	"github.com/pion/transport/v4"
	"github.com/pion/webrtc/v4"
)

type APIOptions struct {
	// Net replaces the OS network stack (a vnet.Net in tests).
	Net transport.Net
	// LogLevel applies to pion's internal loggers. The zero value disables
	// them.
	LogLevel  logging.LogLevel
	LogWriter io.Writer
}

func NewAPI(opts APIOptions) (*webrtc.API, error) {
	se := webrtc.SettingEngine{}

	loggerFactory := logging.NewDefaultLoggerFactory()
	loggerFactory.DefaultLogLevel = opts.LogLevel
	if opts.LogWriter != nil {
		loggerFactory.Writer = opts.LogWriter
	}
	se.LoggerFactory = loggerFactory

	if opts.Net != nil {
		se.SetNet(opts.Net)
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(mediaEngine),
	), nil
}

// ParseLogLevel maps slog-style level names onto pion's levels.
func ParseLogLevel(raw string) logging.LogLevel {
	switch raw {
	case "trace":
		return logging.LogLevelTrace
	case "debug":
		return logging.LogLevelDebug
	case "info":
		return logging.LogLevelInfo
	case "warn", "warning":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelDisabled
	}
}
