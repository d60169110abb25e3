// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/apex/log"

	"github.com/staranto/swproxy/internal/interceptor"
)

// New returns a handler that proxies to upstream through transport.
// Origin-form requests are sent to upstream. Absolute-form requests, as sent
// to a forward proxy, keep their URL.
func New(upstream *url.URL, transport http.RoundTripper) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			if !pr.In.URL.IsAbs() {
				pr.SetURL(upstream)
			} else {
				pr.Out.Host = ""
			}
			pr.SetXForwarded()
		},
		Transport:    transport,
		ErrorHandler: errorHandler,
	}
}

func errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.WithFields(log.Fields{"method": r.Method, "url": r.URL.String()})

	switch {
	case errors.Is(err, context.Canceled):
		logger.Debug("client went away")
	case errors.Is(err, interceptor.ErrOffline):
		logger.WithError(err).Warn("offline navigation with no fallback")
	default:
		logger.WithError(err).Error("proxy error")
	}

	w.WriteHeader(http.StatusBadGateway)
}
