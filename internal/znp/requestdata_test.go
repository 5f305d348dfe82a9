package znp

import (
	"context"
	"sync"
	"testing"
	"time"

	"tizigbee/internal/mt"
)

// TestRequestDataMatchesConcurrentConfirmsByTSN drives two RequestData calls
// concurrently and answers them out of order, exercising the bus's TSN-keyed
// confirm matching (scenario 2: multiple in-flight requests, confirms
// arriving in a different order than the requests were sent).
func TestRequestDataMatchesConcurrentConfirmsByTSN(t *testing.T) {
	d, fake := openTestDriver(t)
	defer d.Close()
	d.setState(StateForming)
	d.setState(StateRunning)

	fake.on(mt.AF, 0x01, func(req mt.Frame) mt.Frame {
		// TSN is at index 6, right after AF.DataRequest's six-byte prefix
		// (DstAddr u16, DstEndpoint u8, SrcEndpoint u8, ClusterId u16).
		tsn := req.Data[6]
		delay := 30 * time.Millisecond
		if tsn == 1 {
			delay = 60 * time.Millisecond // answer the first request's confirm last
		}
		go func(tsn uint8, delay time.Duration) {
			time.Sleep(delay)
			fake.push(mt.Frame{
				Type: mt.AREQ, Subsystem: mt.AF, ID: 0x80,
				Data: []byte{0x00, 1, tsn},
			})
		}(tsn, delay)

		return mt.Frame{Type: mt.SRSP, Subsystem: mt.AF, ID: 0x01, Data: []byte{0x00}}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	results := make([]DataConfirm, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = d.RequestData(ctx, DataRequest{DstAddr: 0x1234, DstEndpoint: 1, ClusterID: 6, Data: []byte{0x01}}, time.Second)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("RequestData[%d]: %v", i, err)
		}
		if results[i].TSN == 0 {
			t.Errorf("RequestData[%d]: TSN = 0, want nonzero", i)
		}
	}
	if results[0].TSN == results[1].TSN {
		t.Fatalf("both requests matched the same confirm TSN %d", results[0].TSN)
	}
}
