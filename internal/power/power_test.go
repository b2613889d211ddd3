package power

import (
	"context"
	"errors"
	"testing"
)

type fixedReader struct {
	status Status
	err    error
}

func (f fixedReader) Read(_ context.Context) (Status, error) {
	return f.status, f.err
}

func TestMockReaderRange(t *testing.T) {
	r := NewMockReader()
	for i := 0; i < 50; i++ {
		status, err := r.Read(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if status.Percent < 20 || status.Percent > 100 {
			t.Fatalf("percent = %d, want 20..100", status.Percent)
		}
	}
}

func TestStatusLow(t *testing.T) {
	if (Status{Percent: LowBatteryPercent + 1}).Low() {
		t.Fatal("above threshold reported low")
	}
	if !(Status{Percent: LowBatteryPercent}).Low() {
		t.Fatal("at threshold not reported low")
	}
}

func TestHealthKV(t *testing.T) {
	kv := HealthKV(fixedReader{status: Status{Percent: 80, VoltageMv: 4100}})(context.Background())
	if len(kv) != 4 {
		t.Fatalf("kv = %v", kv)
	}
	if kv[0] != "battery_percent" || kv[1] != 80 {
		t.Fatalf("kv = %v", kv)
	}
}

func TestHealthKVLowBattery(t *testing.T) {
	kv := HealthKV(fixedReader{status: Status{Percent: 10, VoltageMv: 3300}})(context.Background())

	found := false
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i] == "battery_low" && kv[i+1] == true {
			found = true
		}
	}
	if !found {
		t.Fatalf("battery_low missing from %v", kv)
	}
}

func TestHealthKVError(t *testing.T) {
	kv := HealthKV(fixedReader{err: errors.New("no bus")})(context.Background())
	if len(kv) != 2 || kv[0] != "battery" {
		t.Fatalf("kv = %v", kv)
	}
}
