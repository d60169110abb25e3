// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package interceptor

import (
	"net/http"
	"strings"
)

// ModeNavigate is the Sec-Fetch-Mode value browsers send for document loads.
const ModeNavigate = "navigate"

// Mode returns the fetch mode of req. Clients that send no fetch metadata,
// or an empty Sec-Fetch-Mode, get "navigate" for an HTML GET and "" otherwise.
func Mode(req *http.Request) string {
	if mode := strings.ToLower(strings.TrimSpace(req.Header.Get("Sec-Fetch-Mode"))); mode != "" {
		return mode
	}
	if req.Method != "" && req.Method != http.MethodGet {
		return ""
	}
	if strings.Contains(strings.ToLower(req.Header.Get("Accept")), "text/html") {
		return ModeNavigate
	}
	return ""
}

// IsNavigation reports whether req loads a full document.
func IsNavigation(req *http.Request) bool {
	return Mode(req) == ModeNavigate
}
