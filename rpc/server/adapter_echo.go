package server

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/vsign/rpc/common"
)

// NewEchoServerAdapter returns the adapter of the echo service. It sends the
// request data back together with the server time.
func NewEchoServerAdapter(now func() time.Time) IRPCServerAdapter {
	return &echoServerAdapterImpl{now: now}
}

type echoServerAdapterImpl struct {
	now func() time.Time
}

func (adapter *echoServerAdapterImpl) Handle(req *common.Message) *common.Message {
	if req.MsgType != common.MsgTEcho {
		return unsupported("echo", req.MsgType)
	}
	return common.NewEchoResponse(req.Data, adapter.now())
}

// NewHealthServerAdapter returns the adapter of the health service. serving
// reports whether the server currently accepts requests.
func NewHealthServerAdapter(serving func() bool, now func() time.Time) IRPCServerAdapter {
	return &healthServerAdapterImpl{serving: serving, now: now}
}

type healthServerAdapterImpl struct {
	serving func() bool
	now     func() time.Time
}

func (adapter *healthServerAdapterImpl) Handle(req *common.Message) *common.Message {
	if req.MsgType != common.MsgTHealth {
		return unsupported("health", req.MsgType)
	}
	return common.NewHealthResponse(adapter.serving(), adapter.now())
}

func unsupported(service string, t common.MessageType) *common.Message {
	return common.NewErrorResponse(common.CodeBadRequest,
		fmt.Errorf("%s service does not support message type %s", service, t))
}
