package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ValentinKolb/vsign/lib/signer"
	"github.com/ValentinKolb/vsign/rpc/common"
	"github.com/ValentinKolb/vsign/rpc/serializer"
)

// Workload selector names
const (
	WorkloadEcho        = "echo"
	WorkloadRSASign     = "rsa_sign"
	WorkloadRSAPSSSign  = "rsa_pss_sign"
	WorkloadECCSign     = "ecc_sign"
	WorkloadECCP384Sign = "ecc_p384_sign"
	WorkloadVerify      = "verify"
	WorkloadAll         = "all"
)

// WorkloadNames lists every selector accepted by NewWorkload
var WorkloadNames = []string{
	WorkloadEcho, WorkloadRSASign, WorkloadRSAPSSSign, WorkloadECCSign, WorkloadECCP384Sign, WorkloadVerify,
}

// ExpandSelector resolves a selector into the workloads to run in order.
// "all" runs echo and every signing workload.
func ExpandSelector(selector string) ([]string, error) {
	if selector == WorkloadAll {
		return []string{WorkloadEcho, WorkloadRSASign, WorkloadRSAPSSSign, WorkloadECCSign, WorkloadECCP384Sign}, nil
	}
	for _, name := range WorkloadNames {
		if name == selector {
			return []string{name}, nil
		}
	}
	return nil, fmt.Errorf("unknown service %q (valid: %v or %s)", selector, WorkloadNames, WorkloadAll)
}

// ServiceWorkload produces the requests of one benchmark selector and checks
// the responses. It is stateless after Prepare and safe for concurrent use.
type ServiceWorkload struct {
	name       string
	template   common.Message
	serializer serializer.IRPCSerializer

	// verify only: fixed data and the signature obtained by Prepare
	verifyData []byte
}

// NewWorkload creates the workload for a single selector (not "all")
func NewWorkload(selector string, s serializer.IRPCSerializer) (*ServiceWorkload, error) {
	w := &ServiceWorkload{name: selector, serializer: s}

	switch selector {
	case WorkloadEcho:
		w.template = common.Message{MsgType: common.MsgTEcho}
	case WorkloadRSASign:
		w.template = *common.NewSignRequest("", signer.KeyTypeRSA2048, signer.AlgRSAPKCS1SHA256, nil)
	case WorkloadRSAPSSSign:
		w.template = *common.NewSignRequest("", signer.KeyTypeRSA2048, signer.AlgRSAPSSSHA256, nil)
	case WorkloadECCSign:
		w.template = *common.NewSignRequest("", signer.KeyTypeECCP256, signer.AlgECDSASHA256, nil)
	case WorkloadECCP384Sign:
		w.template = *common.NewSignRequest("", signer.KeyTypeECCP384, signer.AlgECDSASHA384, nil)
	case WorkloadVerify:
		w.verifyData = []byte("Benchmark verify data")
		w.template = *common.NewVerifyRequest("", signer.KeyTypeECCP256, signer.AlgECDSASHA256, w.verifyData, nil)
	default:
		return nil, fmt.Errorf("unknown service %q", selector)
	}
	return w, nil
}

// Name returns the selector name
func (w *ServiceWorkload) Name() string { return w.name }

// NeedsPrepare reports whether Prepare must run before the workload is used
func (w *ServiceWorkload) NeedsPrepare() bool {
	return w.name == WorkloadVerify && w.template.Signature == nil
}

// Prepare obtains the signature the verify workload checks over and over.
// It is a no-op for every other workload.
func (w *ServiceWorkload) Prepare(ctx context.Context, c *SigningClient) error {
	if w.name != WorkloadVerify {
		return nil
	}
	sig, err := c.Sign(ctx, w.template.KeyID, w.template.KeyType, w.template.Algorithm, w.verifyData)
	if err != nil {
		return fmt.Errorf("prepare verify workload: %w", err)
	}
	w.template.KeyID = sig.KeyID
	w.template.Signature = sig.Value
	return nil
}

// Next returns the service and encoded request for the seq-th unit of work
func (w *ServiceWorkload) Next(seq uint64) (uint64, []byte, error) {
	if w.NeedsPrepare() {
		return 0, nil, errors.New("verify workload is not prepared")
	}

	msg := w.template
	if msg.MsgType != common.MsgTVerify {
		msg.Data = []byte("Benchmark data " + strconv.FormatUint(seq, 10))
	}

	payload, err := w.serializer.Serialize(msg)
	if err != nil {
		return 0, nil, err
	}
	return ServiceFor(msg.MsgType), payload, nil
}

// Check validates a response. Server rejections are returned as
// RemoteRejected *common.RpcError.
func (w *ServiceWorkload) Check(resp []byte) error {
	var msg common.Message
	if err := w.serializer.Deserialize(resp, &msg); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := msg.Error(); err != nil {
		return err
	}
	if msg.MsgType != w.template.MsgType {
		return fmt.Errorf("unexpected response type %s, expected %s", msg.MsgType, w.template.MsgType)
	}

	switch msg.MsgType {
	case common.MsgTSign:
		if len(msg.Signature) == 0 {
			return errors.New("empty signature")
		}
	case common.MsgTVerify:
		if !msg.Ok {
			return errors.New("signature rejected")
		}
	}
	return nil
}
