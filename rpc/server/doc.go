// Package server implements the RPC server of the signing service. It routes
// request frames by service id to an adapter and encodes the adapter's
// response with the configured serializer.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface of all service adapters. Handle turns a
//     request message into a response message and reports failures in the
//     response, never as a panic.
//
//   - NewEchoServerAdapter, NewHealthServerAdapter: the echo service (data
//     plus server time) and the health service (serving status).
//
//   - NewSigningServerAdapter: key generation, listing, deletion, public key
//     export, signing and verification against a signer.KeyManager. Signer
//     errors are mapped to wire codes by CodeFor.
//
//   - NewRPCServer: creates the server, generates the bootstrap keys and
//     wires the admission limiter, the adapters and the metrics.
//
// Admission:
//
//	With RateLimit > 0 a token bucket (golang.org/x/time/rate) caps the
//	request rate of the whole server. Requests over the limit are answered
//	with Code=RateLimited without being decoded.
//
// Metrics:
//
//	Request, error and rejection counters, a latency histogram per service
//	and gauges for open connections and stored keys are kept in a
//	VictoriaMetrics set. With MetricsEndpoint set they are served in
//	Prometheus text format at /metrics, next to /healthz.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Listen:        transport.MustParseConfig("tcp://0.0.0.0:50051"),
//	  BootstrapKeys: []signer.KeyType{signer.KeyTypeRSA2048, signer.KeyTypeECCP256},
//	}
//	s, err := server.NewRPCServer(config, serializer.NewBinarySerializer())
//	if err != nil {
//	  log.Fatal(err)
//	}
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	err = s.ListenAndServe(ctx)
//
// Thread Safety:
//
//	Requests are handled concurrently, across connections and up to
//	WorkersPerConn per connection. Serve should be called only once.
package server
