package iec_server

import (
	"fmt"

	"github.com/thinkgos/go-iecp5/asdu"

	"pvsim104/plant"
)

// ASDUSizeMax minus the data unit identifier, divided by one information
// object of the given payload size.
func maxElements(p *asdu.Params, payload int) int {
	ident := 2 + p.CauseSize + p.CommonAddrSize
	return (asdu.ASDUSizeMax - ident) / (p.InfoObjAddrSize + payload)
}

// MaxBatchElements is the largest number of short floating point
// measurements that fit one non-sequence ASDU with params p.
func MaxBatchElements(p *asdu.Params) int {
	// IEEE 754 value plus quality descriptor
	return maxElements(p, 5)
}

// CheckBatchSize rejects interrogation batch sizes that do not fit one ASDU.
func CheckBatchSize(n int) error {
	if limit := MaxBatchElements(asdu.ParamsWide); n > limit {
		return fmt.Errorf("batch size %d exceeds %d elements per ASDU", n, limit)
	}
	return nil
}

func causeOf(c plant.Cause) asdu.Cause {
	if c == plant.CauseInterrogated {
		return asdu.InterrogatedByStation
	}
	return asdu.Spontaneous
}

// sendBatch encodes a batch as one M_ME_NC_1 or M_SP_NA_1 ASDU.
func sendBatch(c asdu.Connect, ca asdu.CommonAddr, b plant.Batch) error {
	coa := asdu.CauseOfTransmission{Cause: causeOf(b.Cause)}

	switch b.Kind {
	case plant.Analog:
		infos := make([]asdu.MeasuredValueFloatInfo, 0, len(b.Items))
		for _, it := range b.Items {
			infos = append(infos, asdu.MeasuredValueFloatInfo{
				Ioa:   asdu.InfoObjAddr(it.Address),
				Value: float32(it.Value),
				Qds:   asdu.QDSGood,
			})
		}
		return asdu.MeasuredValueFloat(c, false, coa, ca, infos...)
	case plant.BinaryStatus:
		infos := make([]asdu.SinglePointInfo, 0, len(b.Items))
		for _, it := range b.Items {
			infos = append(infos, asdu.SinglePointInfo{
				Ioa:   asdu.InfoObjAddr(it.Address),
				Value: it.State,
				Qds:   asdu.QDSGood,
			})
		}
		return asdu.Single(c, false, coa, ca, infos...)
	default:
		return fmt.Errorf("%s points are not reported", b.Kind)
	}
}
