package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSnapMirrorsCounters(t *testing.T) {
	before := Snap()
	AddSerialRxBytes(10)
	IncFrame("odometry")
	IncFrameSkipped("rplidar")
	AddResync(3)
	IncPending()
	IncError(ErrReadTimeout)
	SetBufferFill(17)
	after := Snap()
	if after.RxBytes-before.RxBytes != 10 {
		t.Fatalf("rx bytes delta %d", after.RxBytes-before.RxBytes)
	}
	if after.Frames-before.Frames != 1 || after.Skipped-before.Skipped != 1 {
		t.Fatalf("frame deltas: frames=%d skipped=%d", after.Frames-before.Frames, after.Skipped-before.Skipped)
	}
	if after.Resyncs-before.Resyncs != 3 || after.Pending-before.Pending != 1 || after.Errors-before.Errors != 1 {
		t.Fatalf("unexpected snapshot %+v (before %+v)", after, before)
	}
	if after.BufferFill != 17 {
		t.Fatalf("buffer fill %d want 17", after.BufferFill)
	}
}

func TestReadyHandler(t *testing.T) {
	defer SetReadinessFunc(nil)
	SetReadinessFunc(func() bool { return false })
	rec := httptest.NewRecorder()
	readyHandler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code=%d want 503", rec.Code)
	}
	SetReadinessFunc(func() bool { return true })
	rec = httptest.NewRecorder()
	readyHandler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d want 200", rec.Code)
	}
}
