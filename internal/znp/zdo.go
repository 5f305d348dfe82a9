package znp

import (
	"context"
	"fmt"
	"time"

	"tizigbee/internal/mt"
	"tizigbee/internal/zerr"
)

// ActiveEndpoints queries a device's active application endpoints via
// ZDO.ActiveEpReq, waiting for the matching ZDO.ActiveEpRsp the way
// RequestData waits for AF.DataConfirm: a request_callback pair rather than
// a plain SREQ/SRSP round trip.
func (d *Driver) ActiveEndpoints(ctx context.Context, nwkAddr uint16, timeout time.Duration) ([]uint8, error) {
	if err := d.requireState(StateRunning); err != nil {
		return nil, err
	}

	vals := mt.Values{
		"DstAddr":           uint64(nwkAddr),
		"NWKAddrOfInterest": uint64(nwkAddr),
	}

	result, err := d.bus.RequestCallback(ctx, d.cmd("ZDO.ActiveEpReq"), vals, onActiveEpRsp(d.cat, nwkAddr), timeout)
	if err != nil {
		return nil, fmt.Errorf("znp: active endpoints: %w", err)
	}

	if status := result["Status"].(uint64); status != 0 {
		return nil, zerr.New(zerr.CommandStatus, "ZDO.ActiveEpRsp")
	}

	rows, _ := result["ActiveEndpoints"].([]mt.Values)
	endpoints := make([]uint8, len(rows))
	for i, row := range rows {
		endpoints[i] = uint8(row["Endpoint"].(uint64))
	}
	return endpoints, nil
}
