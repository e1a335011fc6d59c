// Copyright 2026 The Parallax Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides run configuration for Parallax commands.
//
// Configuration is loaded from a single YAML file specified by the
// PARALLAX_CONFIG environment variable or a --config flag. There are
// no fallbacks or automatic discovery; a run without a config file
// uses the built-in defaults, optionally overridden by flags.
package config
