// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestUnstructuredLogsCheck tests the unstructuredLogs function
func TestUnstructuredLogsCheck(t *testing.T) { //nolint:paralleltest // mutates env
	tests := []struct {
		name     string
		envValue string
		expected bool
	}{
		{"Default Case", "", true},
		{"Explicitly True", "true", true},
		{"Explicitly False", "false", false},
		{"Invalid Value", "not-a-bool", true},
	}

	for _, tt := range tests { //nolint:paralleltest // mutates env
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("UNSTRUCTURED_LOGS", tt.envValue)
			assert.Equal(t, tt.expected, unstructuredLogs())
		})
	}
}

// setSingletonForTest temporarily replaces the singleton logger and restores
// the original when the test completes.
func setSingletonForTest(t *testing.T, l *zap.SugaredLogger) {
	t.Helper()
	prev := singleton.Load()
	singleton.Store(l)
	t.Cleanup(func() { singleton.Store(prev) })
}

// TestLogLevels tests that each log function writes to the underlying core.
func TestLogLevels(t *testing.T) { //nolint:paralleltest // mutates singleton
	tests := []struct {
		name     string
		logFn    func()
		expected string
	}{
		{name: "Debug", logFn: func() { Debug("debug msg") }, expected: "debug msg"},
		{name: "Debugf", logFn: func() { Debugf("debug %s", "formatted") }, expected: "debug formatted"},
		{name: "Debugw", logFn: func() { Debugw("debug kv", "key", "val") }, expected: "debug kv"},
		{name: "Info", logFn: func() { Info("info msg") }, expected: "info msg"},
		{name: "Infof", logFn: func() { Infof("info %s", "formatted") }, expected: "info formatted"},
		{name: "Infow", logFn: func() { Infow("info kv", "key", "val") }, expected: "info kv"},
		{name: "Warn", logFn: func() { Warn("warn msg") }, expected: "warn msg"},
		{name: "Warnf", logFn: func() { Warnf("warn %s", "formatted") }, expected: "warn formatted"},
		{name: "Warnw", logFn: func() { Warnw("warn kv", "key", "val") }, expected: "warn kv"},
		{name: "Error", logFn: func() { Error("error msg") }, expected: "error msg"},
		{name: "Errorf", logFn: func() { Errorf("error %s", "formatted") }, expected: "error formatted"},
		{name: "Errorw", logFn: func() { Errorw("error kv", "key", "val") }, expected: "error kv"},
	}

	for _, tc := range tests { //nolint:paralleltest // mutates singleton
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			setSingletonForTest(t, zap.New(core).Sugar())

			tc.logFn()

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tc.expected, entries[0].Message)
		})
	}
}

func TestStructuredFieldsArePreserved(t *testing.T) { //nolint:paralleltest // mutates singleton
	core, logs := observer.New(zap.DebugLevel)
	setSingletonForTest(t, zap.New(core).Sugar())

	Infow("with fields", "workflow", "deploy", "step", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Context, 2)
	assert.Equal(t, "workflow", entries[0].Context[0].Key)
	assert.Equal(t, "deploy", entries[0].Context[0].String)
	assert.Equal(t, "step", entries[0].Context[1].Key)
}

func TestInitialize(t *testing.T) { //nolint:paralleltest // mutates singleton and env
	prev := singleton.Load()
	t.Cleanup(func() { singleton.Store(prev) })

	t.Setenv("UNSTRUCTURED_LOGS", "false")
	Initialize()
	require.NotNil(t, Get())

	t.Setenv("UNSTRUCTURED_LOGS", "true")
	Initialize()
	require.NotNil(t, Get())
}
