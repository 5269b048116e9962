package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/v2mini/internal/debug"
	"github.com/hipsterbrown/feetech-servo/feetech"
)

// feetechScale converts the 10-bit pan units used by the loop into the
// 12-bit STS position range.
const feetechScale = 4

// Feetech drives one Feetech STS servo. The loop works in 0..1023 units,
// scaled up to the servo's 0..4095 range. Speed is left to the servo's own
// profile.
type Feetech struct {
	bus     *feetech.Bus
	group   *feetech.ServoGroup
	id      int
	timeout time.Duration
}

// OpenFeetech opens the bus and enables torque on servo id.
func OpenFeetech(port string, baud, id int) (*Feetech, error) {
	b, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baud,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}
	f := &Feetech{
		bus:     b,
		group:   feetech.NewServoGroupByIDs(b, id),
		id:      id,
		timeout: 100 * time.Millisecond,
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := f.group.EnableAll(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("enable servo %d: %w", id, err)
	}
	debug.Info("Feetech servo %d on %s (%d baud)", id, port, baud)
	return f, nil
}

// SetGoal writes the scaled goal position.
func (f *Feetech) SetGoal(position, speed int) error {
	position = max(0, min(1023, position))
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := f.group.SetPositions(ctx, feetech.PositionMap{f.id: position * feetechScale}); err != nil {
		return fmt.Errorf("write position: %w", err)
	}
	return nil
}

// Close disables torque and closes the bus.
func (f *Feetech) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := f.group.DisableAll(ctx); err != nil {
		debug.Error(fmt.Errorf("disable servo %d: %w", f.id, err))
	}
	return f.bus.Close()
}
