/*
 * Copyright (c) 2025, WSO2 LLC. (http://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package log

import (
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/abdm-phr/phr/internal/system/constants"
)

type LogTestSuite struct {
	suite.Suite
	originalLogLevel string
}

func TestLogSuite(t *testing.T) {
	suite.Run(t, new(LogTestSuite))
}

func (suite *LogTestSuite) SetupTest() {
	suite.originalLogLevel = os.Getenv(constants.LogLevelEnvironmentVariable)
}

func (suite *LogTestSuite) TearDownTest() {
	err := os.Setenv(constants.LogLevelEnvironmentVariable, suite.originalLogLevel)
	if err != nil {
		suite.T().Errorf("Failed to restore environment variable: %v", err)
	}
	logger = nil
	once = sync.Once{}
}

func newObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewLogger(zap.New(core)), logs
}

func (suite *LogTestSuite) TestInitLoggerWithEnvironmentVariable() {
	testCases := []struct {
		name     string
		logLevel string
		isValid  bool
	}{
		{"DefaultLevel", "", true},
		{"DebugLevel", "debug", true},
		{"InfoLevel", "info", true},
		{"WarnLevel", "warn", true},
		{"ErrorLevel", "error", true},
		{"InvalidLevel", "unknown", false},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			logger = nil
			once = sync.Once{}

			if tc.logLevel != "" {
				suite.NoError(os.Setenv(constants.LogLevelEnvironmentVariable, tc.logLevel))
			} else {
				suite.NoError(os.Unsetenv(constants.LogLevelEnvironmentVariable))
			}

			if tc.isValid {
				suite.NotPanics(func() { _ = GetLogger() })
			} else {
				suite.Panics(func() { _ = GetLogger() })
			}
		})
	}
}

func (suite *LogTestSuite) TestParseLogLevel() {
	testCases := []struct {
		name      string
		logLevel  string
		expected  zapcore.Level
		expectErr bool
	}{
		{"Debug", "debug", zapcore.DebugLevel, false},
		{"Info", "info", zapcore.InfoLevel, false},
		{"Warn", "warn", zapcore.WarnLevel, false},
		{"Error", "error", zapcore.ErrorLevel, false},
		{"Invalid", "invalid", zapcore.ErrorLevel, true},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			level, err := parseLogLevel(tc.logLevel)
			if tc.expectErr {
				suite.Error(err)
			} else {
				suite.NoError(err)
			}
			suite.Equal(tc.expected, level)
		})
	}
}

func (suite *LogTestSuite) TestLogMethods() {
	l, logs := newObservedLogger(zapcore.DebugLevel)

	l.Debug("Debug message", String("test", "debug"))
	l.Info("Info message", Int("count", 2))
	l.Warn("Warning message", Bool("flag", true))
	l.Error("Error message", Error(errors.New("boom")))

	entries := logs.All()
	suite.Len(entries, 4)
	suite.Equal("Debug message", entries[0].Message)
	suite.Equal("debug", entries[0].ContextMap()["test"])
	suite.Equal(int64(2), entries[1].ContextMap()["count"])
	suite.Equal(true, entries[2].ContextMap()["flag"])
	suite.Equal("boom", entries[3].ContextMap()["error"])
	suite.True(l.IsDebugEnabled())
}

func (suite *LogTestSuite) TestLoggerWith() {
	l, logs := newObservedLogger(zapcore.InfoLevel)

	contextLogger := l.With(String(LoggerKeyComponentName, "test"))
	contextLogger.Info("Context log message")
	contextLogger.Debug("Dropped")

	suite.Equal(1, logs.Len())
	entry := logs.All()[0]
	suite.Equal("Context log message", entry.Message)
	suite.Equal("test", entry.ContextMap()[LoggerKeyComponentName])
	suite.False(contextLogger.IsDebugEnabled())
}

func (suite *LogTestSuite) TestMaskString() {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"Empty", "", ""},
		{"Short", "ab", "**"},
		{"ThreeChars", "abc", "***"},
		{"Mobile", "9998887777", "9********7"},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			assert.Equal(suite.T(), tc.expected, MaskString(tc.input))
		})
	}
}
