// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: Apache-2.0

// Package output filters, sorts and renders JSON datasets such as cache
// listings and install reports as text tables, JSON or YAML.
package output
