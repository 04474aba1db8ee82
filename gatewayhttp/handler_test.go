// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gatewayhttp

import (
	"log/slog"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
