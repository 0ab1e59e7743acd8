// Package config loads, validates, and watches the dipscan YAML
// configuration: HTTP server settings, the remote archive endpoint and its
// authentication, result/scratch filesystem roots, per-batch defaults, and
// batch-completion notification rules.
//
// Secrets (API keys, tokens, webhook URLs) are never stored in the file;
// the config names environment variables and values are resolved at use time.
//
// Watch provides fsnotify-based hot reload; a failed reload keeps the
// previous configuration active.
package config
