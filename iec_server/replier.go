package iec_server

import (
	"github.com/thinkgos/go-iecp5/asdu"

	"pvsim104/plant"
)

// reply rebuilds a request's information object for a confirmation or
// termination. Decoding a request consumes its information object, so
// the request ASDU cannot simply be mirrored.
type reply struct {
	conn    asdu.Connect
	ident   asdu.Identifier
	ioa     asdu.InfoObjAddr
	payload byte
}

func newReply(c asdu.Connect, req *asdu.ASDU, ioa asdu.InfoObjAddr, payload byte) reply {
	return reply{conn: c, ident: req.Identifier, ioa: ioa, payload: payload}
}

func (r reply) send(cause asdu.Cause, negative bool) error {
	ident := r.ident
	ident.Variable = asdu.VariableStruct{Number: 1}
	ident.Coa.Cause = cause
	ident.Coa.IsNegative = negative

	u := asdu.NewASDU(r.conn.Params(), ident)
	if err := u.AppendInfoObjAddr(r.ioa); err != nil {
		return err
	}
	u.AppendBytes(r.payload)
	return r.conn.Send(u)
}

// interrogationReplier answers one C_IC_NA_1 on the session it arrived on.
type interrogationReplier struct {
	reply
	ca asdu.CommonAddr
}

var _ plant.Replier = (*interrogationReplier)(nil)

func (r *interrogationReplier) Confirm(positive bool) error {
	return r.send(asdu.ActivationCon, !positive)
}

func (r *interrogationReplier) Send(b plant.Batch) error {
	return sendBatch(r.conn, r.ca, b)
}

func (r *interrogationReplier) Terminate() error {
	return r.send(asdu.ActivationTerm, false)
}

// commandAck confirms one C_SC_NA_1. A rejected command is answered
// with cause "unknown information object address".
type commandAck struct {
	reply
}

var _ plant.Acknowledger = (*commandAck)(nil)

func (a *commandAck) Confirm(positive bool) error {
	if positive {
		return a.send(asdu.ActivationCon, false)
	}
	return a.send(asdu.UnknownIOA, true)
}

// sco encodes a single command qualifier byte.
func sco(cmd asdu.SingleCommandInfo) byte {
	b := cmd.Qoc.Value()
	if cmd.Value {
		b |= 0x01
	}
	return b
}
