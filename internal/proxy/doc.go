// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: Apache-2.0

// Package proxy serves a front end through a reverse proxy whose upstream
// round trips go through the offline cache interceptor.
package proxy
