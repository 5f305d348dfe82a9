package znp

import (
	"context"
	"fmt"
	"time"

	"tizigbee/internal/mt"
	"tizigbee/internal/zerr"
)

// DataRequest is the application-data payload for RequestData.
type DataRequest struct {
	DstAddr     uint16
	DstEndpoint uint8
	ClusterID   uint16
	Data        []byte
	Radius      uint8 // default 30 if zero
}

// DataConfirm is what a completed RequestData returns: the coprocessor's
// delivery confirmation, not an end-to-end application ACK.
type DataConfirm struct {
	Status   uint8
	Endpoint uint8
	TSN      uint8
}

// nextTSN allocates a transaction sequence number, wrapping mod 256, used
// to correlate AF.DataRequest with its AF.DataConfirm.
func (d *Driver) nextTSN() uint8 {
	d.tsnMu.Lock()
	defer d.tsnMu.Unlock()
	d.tsn++
	return d.tsn
}

// RequestData sends application data through AF.DataRequest and waits for
// the matching AF.DataConfirm, bounding the number of concurrent in-flight
// requests to MaxConcurrentReqs.
func (d *Driver) RequestData(ctx context.Context, req DataRequest, timeout time.Duration) (DataConfirm, error) {
	if err := d.requireState(StateRunning); err != nil {
		return DataConfirm{}, err
	}

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return DataConfirm{}, zerr.New(zerr.Cancelled, "AF.DataRequest")
	}
	defer func() { <-d.sem }()

	if req.Radius == 0 {
		req.Radius = 30
	}
	tsn := d.nextTSN()

	vals := mt.Values{
		"DstAddr":     uint64(req.DstAddr),
		"DstEndpoint": uint64(req.DstEndpoint),
		"SrcEndpoint": uint64(coordinatorEndpoint),
		"ClusterId":   uint64(req.ClusterID),
		"TSN":         uint64(tsn),
		"Options":     uint64(0),
		"Radius":      uint64(req.Radius),
		"Data":        req.Data,
	}

	result, err := d.bus.RequestCallback(ctx, d.cmd("AF.DataRequest"), vals, onDataConfirm(d.cat, tsn), timeout)
	if err != nil {
		return DataConfirm{}, fmt.Errorf("znp: request data: %w", err)
	}

	return DataConfirm{
		Status:   uint8(result["Status"].(uint64)),
		Endpoint: uint8(result["Endpoint"].(uint64)),
		TSN:      uint8(result["TSN"].(uint64)),
	}, nil
}
