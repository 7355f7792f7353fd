// Package client implements the client side of the signing service: the
// connection lifecycle manager, the service stub and the benchmark workloads.
//
// Key Components:
//
//   - Manager: one logical session. It owns at most one connection at a time
//     and moves between Disconnected, Connecting, Ready and Degraded.
//     EnsureReady makes one bounded connection attempt, Connect retries with
//     exponential backoff until Ready or the retry budget is exhausted, and
//     Dispatch sends a call over the multiplexed channel of a Ready session.
//     A transport failure moves the session straight to Disconnected and is
//     never retried inside the manager.
//
//   - SigningClient: typed stub for the echo, signing and health services.
//     Server rejections come back as a *DispatchError wrapping a
//     RemoteRejected *common.RpcError with the server's code.
//
//   - ServiceWorkload: request generator and response check for one
//     benchmark selector (echo, rsa_sign, rsa_pss_sign, ecc_sign,
//     ecc_p384_sign, verify).
//
// Errors:
//
//   - *ConnectionError: the call was refused by the manager (ErrNotReady,
//     ErrDisconnected, ErrClosed); Exhausted marks a used up retry budget.
//
//   - *DispatchError: an in-flight call failed; Kind reports whether it was
//     a transport failure, a timeout or a remote rejection.
//
// Usage Example:
//
//	dial := client.Dialer(transport.MustParseConfig("tcp://localhost:50051"), transport.DefaultOptions())
//	err := client.WithSession(ctx, dial, common.DefaultRetryPolicy(), func(m *client.Manager) error {
//	  c := client.NewSigningClient(m, serializer.NewBinarySerializer())
//	  sig, err := c.Sign(ctx, "", signer.KeyTypeECCP256, signer.AlgUnspecified, []byte("data"))
//	  if err != nil {
//	    return err
//	  }
//	  fmt.Printf("%x\n", sig.Value)
//	  return nil
//	})
//
// Thread Safety:
//
//	Manager, SigningClient and ServiceWorkload are safe for concurrent use.
//	Many goroutines may dispatch over one session; calls are multiplexed by
//	request id.
package client
