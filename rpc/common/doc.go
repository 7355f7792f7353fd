// Package common provides core data structures and utilities shared by the
// vsign client, server and benchmark. It defines the wire message, the
// configuration structures and the error type of the RPC surface.
//
// The package focuses on:
//   - Message protocol definition for the echo, signing and health services
//   - Configuration structures for client and server components
//   - Retry policy for client connection setup
//   - Custom logging implementation integrated with Dragonboat's logger interface
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. Which fields are
//     set depends on MessageType. Rejected requests carry an ErrorCode.
//
//   - RpcError: Result of a failed call, classified as transport failure,
//     timeout or remote rejection (with the server's ErrorCode).
//
//   - RetryPolicy: Attempt budget and exponential backoff applied by the
//     client lifecycle manager when (re)connecting.
//
//   - ServerConfig / ClientConfig: Parsed configuration with String()
//     renderings printed at startup.
//
//   - Logger: CreateLogger / InitLoggers install a formatter for Dragonboat's
//     logger.ILogger that every package logger goes through.
package common
