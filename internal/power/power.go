package power

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// PiSugar3 register map (7-bit address 0x57):
//   - 0x22 (high), 0x23 (low): battery voltage in millivolts
//   - 0x2A: battery percentage (0-100)
const (
	DefaultAddr = 0x57

	regVoltageHigh = 0x22
	regVoltageLow  = 0x23
	regPercent     = 0x2A
)

// LowBatteryPercent is where the health line starts flagging the battery.
const LowBatteryPercent = 15

// Status is the battery state reported on the status API.
type Status struct {
	// Percent is the battery level in 0-100%.
	Percent int `json:"percent"`
	// VoltageMv is the battery voltage in millivolts, if known.
	VoltageMv int `json:"voltage_mv"`
}

// Low reports whether the charge is low enough to warn about.
func (s Status) Low() bool { return s.Percent <= LowBatteryPercent }

// Reader abstracts how battery information is obtained, so the appliance
// runs the same on a battery-backed Pi and on a development machine.
type Reader interface {
	Read(ctx context.Context) (Status, error)
}

// mockReader backs development machines: a pseudo-random percentage and no
// voltage.
type mockReader struct {
	rnd *rand.Rand
}

// NewMockReader returns a Reader generating random 20-100% levels.
func NewMockReader() Reader {
	return &mockReader{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (m *mockReader) Read(_ context.Context) (Status, error) {
	return Status{Percent: 20 + m.rnd.Intn(81)}, nil
}

// piSugarReader talks to a PiSugar3 UPS over I2C.
type piSugarReader struct {
	busName string
	addr    uint16

	initOnce sync.Once
	initErr  error
}

// NewPiSugarReader constructs an I2C-backed Reader. busName selects the
// periph.io bus ("" for the platform default, /dev/i2c-1 on a Pi); addr is
// the controller's 7-bit address.
func NewPiSugarReader(busName string, addr uint16) Reader {
	if addr == 0 {
		addr = DefaultAddr
	}
	return &piSugarReader{busName: busName, addr: addr}
}

func (r *piSugarReader) Read(_ context.Context) (Status, error) {
	if runtime.GOOS != "linux" {
		return Status{}, errors.New("power: i2c reader unavailable on this platform")
	}
	r.initOnce.Do(func() {
		_, r.initErr = host.Init()
	})
	if r.initErr != nil {
		return Status{}, fmt.Errorf("power: host init: %w", r.initErr)
	}

	bus, err := i2creg.Open(r.busName)
	if err != nil {
		return Status{}, err
	}
	defer bus.Close()

	dev := &i2c.Dev{Bus: bus, Addr: r.addr}
	readReg := func(reg byte) (byte, error) {
		buf := []byte{0}
		if err := dev.Tx([]byte{reg}, buf); err != nil {
			return 0, err
		}
		return buf[0], nil
	}

	high, err := readReg(regVoltageHigh)
	if err != nil {
		return Status{}, err
	}
	low, err := readReg(regVoltageLow)
	if err != nil {
		return Status{}, err
	}

	pct, err := readReg(regPercent)
	if err != nil {
		return Status{}, err
	}
	if pct > 100 {
		pct = 100
	}

	return Status{
		Percent:   int(pct),
		VoltageMv: int(uint16(high)<<8 | uint16(low)),
	}, nil
}

// Detect probes for a PiSugar3 and falls back to the mock reader when no
// hardware answers, so callers always get a working Reader.
func Detect() Reader {
	if runtime.GOOS != "linux" {
		return NewMockReader()
	}
	r := NewPiSugarReader("", DefaultAddr)
	if _, err := r.Read(context.Background()); err != nil {
		return NewMockReader()
	}
	return r
}

// HealthKV adapts a Reader into key-value pairs for the periodic health
// line.
func HealthKV(r Reader) func(ctx context.Context) []any {
	return func(ctx context.Context) []any {
		status, err := r.Read(ctx)
		if err != nil {
			return []any{"battery", "unavailable"}
		}
		kv := []any{"battery_percent", status.Percent}
		if status.VoltageMv > 0 {
			kv = append(kv, "battery_mv", status.VoltageMv)
		}
		if status.Low() {
			kv = append(kv, "battery_low", true)
		}
		return kv
	}
}
