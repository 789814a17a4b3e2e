package power

import (
	"context"
	"fmt"
)

const blockSize = 32

// ReadMemory reads a 16-bit value from data memory at the given subclass and
// byte offset. The gauge is unsealed, put in configuration update mode and
// soft reset once the value is read.
//
// offset%32 must not exceed 30: a value straddling two 32-byte blocks is not
// supported. The block checksum is read and logged but not validated.
//
// On error the sequence stops where it failed and no soft reset is sent, so
// the gauge may be left in configuration update mode. Callers should SoftReset
// before further use.
func (g *BQ27xxx) ReadMemory(ctx context.Context, class MemorySubclass, offset byte) (uint16, error) {
	if err := g.selectBlock(ctx, class, offset/blockSize); err != nil {
		return 0, err
	}
	g.logger.DebugContext(ctx, "reading memory", "class", class, "offset", fmt.Sprintf("%#02x", offset))
	checksum, err := g.readChecksum(ctx)
	if err != nil {
		return 0, err
	}
	g.logger.DebugContext(ctx, "block checksum read", "checksum", fmt.Sprintf("%#02x", checksum))
	value, err := g.ReadCommand(ctx, CmdBlockDataStart+Command(offset%blockSize))
	if err != nil {
		return 0, err
	}
	if err := g.SoftReset(ctx); err != nil {
		return 0, err
	}
	return value, nil
}

// Block is a full 32-byte data memory block with the checksum reported by the gauge.
type Block struct {
	Class    MemorySubclass
	Index    byte
	Data     [blockSize]byte
	Checksum byte
}

// Valid reports whether Checksum matches the block content. ReadBlock never
// rejects a block on its own.
func (b Block) Valid() bool {
	return BlockChecksum(b.Data[:]) == b.Checksum
}

// BlockChecksum computes the data memory checksum: 255 minus the byte sum.
func BlockChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return 0xFF - sum
}

// ReadBlock reads the index-th 32-byte block of a data memory subclass. The
// mode handling and failure behavior are the same as for ReadMemory.
func (g *BQ27xxx) ReadBlock(ctx context.Context, class MemorySubclass, index byte) (Block, error) {
	block := Block{Class: class, Index: index}
	if err := g.selectBlock(ctx, class, index); err != nil {
		return block, err
	}
	checksum, err := g.readChecksum(ctx)
	if err != nil {
		return block, err
	}
	block.Checksum = checksum
	err = g.transport.TxToAddr(ctx, g.address, []byte{byte(CmdBlockDataStart)}, block.Data[:])
	if err != nil {
		return block, transportError(fmt.Errorf("could not read block data: %w", err))
	}
	if err := g.SoftReset(ctx); err != nil {
		return block, err
	}
	return block, nil
}

// selectBlock enables block data access and points it at the given block.
func (g *BQ27xxx) selectBlock(ctx context.Context, class MemorySubclass, index byte) error {
	if err := g.Unseal(ctx); err != nil {
		return err
	}
	if err := g.EnterConfigUpdateMode(ctx); err != nil {
		return err
	}
	// 0 enables direct memory access
	if err := g.writeCommand(ctx, CmdBlockDataControl, 0); err != nil {
		return err
	}
	if err := g.writeCommand(ctx, CmdDataClass, byte(class)); err != nil {
		return err
	}
	return g.writeCommand(ctx, CmdDataBlock, index)
}

func (g *BQ27xxx) readChecksum(ctx context.Context) (byte, error) {
	resp := make([]byte, 1)
	err := g.transport.TxToAddr(ctx, g.address, []byte{byte(CmdBlockDataChecksum)}, resp)
	if err != nil {
		return 0, transportError(fmt.Errorf("could not read block checksum: %w", err))
	}
	return resp[0], nil
}
