// Package queue carries harvest requests over NSQ. The Publisher schedules a
// source run and the Worker consumes requests and runs them.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nsqio/go-nsq"
)

// Config holds NSQ connection settings shared by publishers and workers.
type Config struct {
	NsqdAddr     string
	LookupdAddr  string
	Topic        string
	Channel      string
	MaxInFlight  int
	MsgTimeout   time.Duration
	MaxAttempts  uint16
	RequeueDelay time.Duration
}

// Request is the message body of a harvest request.
type Request struct {
	SourceID    string    `json:"source_id"`
	RequestedAt time.Time `json:"requested_at"`
}

func encodeRequest(r Request) ([]byte, error) {
	return json.Marshal(r)
}

func decodeRequest(body []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(body, &r); err != nil {
		return r, fmt.Errorf("decode harvest request: %w", err)
	}
	if r.SourceID == "" {
		return r, errors.New("decode harvest request: missing source_id")
	}
	return r, nil
}

func (c Config) nsqConfig() (*nsq.Config, error) {
	cfg := nsq.NewConfig()
	settings := map[string]any{}
	if c.MaxInFlight > 0 {
		settings["max_in_flight"] = c.MaxInFlight
	}
	if c.MsgTimeout > 0 {
		settings["msg_timeout"] = c.MsgTimeout
	}
	if c.MaxAttempts > 0 {
		settings["max_attempts"] = c.MaxAttempts
	}
	for k, v := range settings {
		if err := cfg.Set(k, v); err != nil {
			return nil, fmt.Errorf("nsq option %s: %w", k, err)
		}
	}
	return cfg, nil
}

// slogLogger adapts slog to the logger interface of go-nsq. go-nsq prefixes
// every line with a three-letter level.
type slogLogger struct {
	logger *slog.Logger
}

var nsqLevels = map[string]slog.Level{
	"DBG": slog.LevelDebug,
	"INF": slog.LevelInfo,
	"WRN": slog.LevelWarn,
	"ERR": slog.LevelError,
}

func (l slogLogger) Output(_ int, s string) error {
	level, msg := slog.LevelInfo, s
	if len(s) > 3 {
		if lvl, ok := nsqLevels[s[:3]]; ok {
			level, msg = lvl, strings.TrimSpace(s[3:])
		}
	}
	l.logger.Log(context.Background(), level, msg, "component", "nsq")
	return nil
}

func nsqLogLevel(logger *slog.Logger) nsq.LogLevel {
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		return nsq.LogLevelDebug
	}
	return nsq.LogLevelInfo
}
