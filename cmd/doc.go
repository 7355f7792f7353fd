// Package cmd implements the command-line interface of vsign. It provides a
// hierarchical command structure with operations for running the signing
// server, calling it as a client and measuring it under load.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures the signing server
//   - client: Calls the echo, signing and health services (sign, verify, keys, ...)
//   - bench: Load generator reporting latency percentiles and throughput
//   - monitor: Logs CPU utilisation statistics of the local machine
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as an environment variable VSIGN_<FLAG>, and
// .env / .env.local files in the working directory are loaded at startup.
//
// See vsign -help for a list of all commands.
package cmd
