package relay

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSimpleLoggerLevels(t *testing.T) {
	logger := NewSimpleLogger()

	logger.Debug("debug message")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message")
	logger.Error("error message")
}

func TestNewZapLogger(t *testing.T) {
	for _, cfg := range []LogConfig{DefaultLogConfig(), DevelopmentLogConfig()} {
		logger, err := NewZapLogger(cfg)
		if err != nil {
			t.Fatalf(unexpectedErr, err)
		}
		if !logger.Core().Enabled(zapcore.ErrorLevel) {
			t.Errorf("Expected error level to be enabled for %+v", cfg)
		}
	}

	if _, err := NewZapLogger(LogConfig{Level: "loud"}); err == nil {
		t.Error("Expected invalid level to be rejected")
	}
}

func TestFromZapFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(core))

	logger.Info("hello", "requestID", "abc", "status", 200)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["requestID"] != "abc" {
		t.Errorf("Expected requestID 'abc', got %v", fields["requestID"])
	}
	if fields["status"] != int64(200) {
		t.Errorf("Expected status 200, got %v", fields["status"])
	}
}

func TestFromZapNil(t *testing.T) {
	logger := FromZap(nil)
	logger.Error("discarded")
}

func TestLoggingObserver(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	obs := NewLoggingObserver(FromZap(zap.New(core)))
	desc := &Descriptor{Name: "comments_get"}
	req := &Request{ID: "req-1", Method: "GET", URL: "http://test.com/comments/1"}

	obs.OnEvent(Event{Kind: EventDispatched, Descriptor: desc, Request: req, InFlight: 1})
	obs.OnEvent(Event{Kind: EventFailed, Descriptor: desc, Request: req, Err: errors.New("boom")})
	obs.OnEvent(Event{Kind: EventDrained})

	if n := logs.FilterLevelExact(zapcore.WarnLevel).Len(); n != 1 {
		t.Errorf("Expected 1 warn entry, got %d", n)
	}
	if n := logs.FilterMessage("Request dispatched").Len(); n != 1 {
		t.Errorf("Expected 1 dispatched entry, got %d", n)
	}
	if n := logs.FilterField(zap.String("requestID", "req-1")).Len(); n != 2 {
		t.Errorf("Expected 2 entries tagged with the request ID, got %d", n)
	}
	if n := logs.FilterMessage("All requests finished").Len(); n != 1 {
		t.Errorf("Expected 1 drained entry, got %d", n)
	}
}
