// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package hashtable

import "github.com/cachegrand-io/lockfreekv/logger"

// Logger is the generic logging interface callers satisfy with glog
// (github.com/cachegrand-io/lockfreekv/glog) or any other
// implementation, so this package never depends on a concrete logging
// backend directly.
type Logger = logger.Logger

// noopLogger discards everything; it is the default when Config.Logger
// is nil, so a Table used as a pure library dependency stays silent.
type noopLogger struct{}

func (noopLogger) Info(args ...interface{})                 {}
func (noopLogger) Infof(format string, args ...interface{}) {}
func (noopLogger) Error(args ...interface{})                {}
func (noopLogger) Errorf(format string, args ...interface{}) {
}
func (noopLogger) Fatal(args ...interface{}) {}
func (noopLogger) Fatalf(format string, args ...interface{}) {
}
