package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/vsign/rpc/common"
	"github.com/ValentinKolb/vsign/rpc/serializer"
)

// ServiceFor returns the service a request message type is served by
func ServiceFor(t common.MessageType) uint64 {
	switch t {
	case common.MsgTEcho:
		return common.ServiceEcho
	case common.MsgTHealth:
		return common.ServiceHealth
	default:
		return common.ServiceSigning
	}
}

// invokeRPCRequest is the helper used by every client stub to send a request.
// It serializes req, dispatches it over the session and decodes the response.
// A rejection reported by the server comes back as a *DispatchError wrapping
// a RemoteRejected *common.RpcError. The response type must match the request.
func invokeRPCRequest(ctx context.Context, session *Manager, req *common.Message, s serializer.IRPCSerializer) (*common.Message, error) {
	service := ServiceFor(req.MsgType)

	reqBytes, err := s.Serialize(*req)
	if err != nil {
		return nil, fmt.Errorf("serialize %s request: %w", req.MsgType, err)
	}

	respBytes, err := session.Dispatch(ctx, service, reqBytes)
	if err != nil {
		return nil, err
	}

	resp := &common.Message{}
	if err := s.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", req.MsgType, err)
	}

	if rejected := resp.Error(); rejected != nil {
		return nil, &DispatchError{Session: session.Name(), Service: service, Err: rejected}
	}

	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("unexpected response type %s, expected %s", resp.MsgType, req.MsgType)
	}

	return resp, nil
}
