// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: Apache-2.0

// swproxy is the main package for the swproxy command line tool. It puts a
// network-first, cache-fallback proxy in front of a web front end so that
// pages seen once keep working offline.
package main
