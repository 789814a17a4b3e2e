package power

import (
	"context"
	"fmt"
	"time"
)

const (
	flagsPollInterval = 500 * time.Millisecond
	flagsPollAttempts = 10
)

// Unseal is a no-op: the unseal key sequence is not implemented and the driver
// relies on the gauge shipping unsealed. It is still called before every
// operation that needs configuration update mode.
// TODO: write the two unseal key words once the keys for the target packs are known.
func (g *BQ27xxx) Unseal(ctx context.Context) error {
	g.logger.DebugContext(ctx, "unsealing the chip")
	return nil
}

// Seal is a no-op counterpart of Unseal.
func (g *BQ27xxx) Seal(ctx context.Context) error {
	g.logger.DebugContext(ctx, "sealing the chip")
	return nil
}

// EnterConfigUpdateMode sends SET_CFGUPDATE and polls the flags register until
// the gauge reports configuration update mode, every 500ms for at most 10 reads.
// The gauge must be unsealed.
func (g *BQ27xxx) EnterConfigUpdateMode(ctx context.Context) error {
	g.logger.DebugContext(ctx, "entering cfgupdate mode")
	if err := g.WriteControl(ctx, CtrlSetCfgUpdate); err != nil {
		return err
	}
	if err := g.waitFlags(ctx, FlagCfgUpdateMode); err != nil {
		return err
	}
	g.logger.DebugContext(ctx, "cfgupdate mode entered")
	return nil
}

func (g *BQ27xxx) waitFlags(ctx context.Context, mask Flags) error {
	for range flagsPollAttempts {
		g.delay.Delay(ctx, flagsPollInterval)
		flags, err := g.GetFlags(ctx)
		if err != nil {
			return err
		}
		g.logger.DebugContext(ctx, "read flags register", "flags", fmt.Sprintf("%016b", uint16(flags)))
		if flags&mask != 0 {
			return nil
		}
	}
	return pollTimeout()
}
