package server

import (
	"github.com/ValentinKolb/vsign/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters.
// An adapter serves exactly one service id.
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response.
	// Failures are reported in the response (Code and Err), never as a panic
	// or a nil response.
	Handle(req *common.Message) (resp *common.Message)
}
