package hive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/raid-guild/hive-x402-facilitator-go/types"
)

// Operation ids in the Hive binary format.
const (
	opIDTransfer = 2
)

var (
	// ErrUnsupportedOperation is returned when a transaction contains an
	// operation this package cannot serialize.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	assetPattern = regexp.MustCompile(`^(\d+)(?:\.(\d+))?\s+([A-Z]{1,7})$`)

	// The chain still signs over the pre-rename asset symbols.
	legacySymbols = map[string]string{
		"HBD":  "SBD",
		"HIVE": "STEEM",
	}
)

// Serialize encodes a transaction in the Hive binary format, excluding signatures.
func Serialize(tx *types.SignedTransaction) ([]byte, error) {
	if tx == nil {
		return nil, errors.New("nil transaction")
	}

	var buf bytes.Buffer

	// Write the block reference
	_ = binary.Write(&buf, binary.LittleEndian, tx.RefBlockNum)
	_ = binary.Write(&buf, binary.LittleEndian, tx.RefBlockPrefix)

	// Write the expiration as seconds since epoch
	expiration, err := types.ParseHiveTime(tx.Expiration)
	if err != nil {
		return nil, fmt.Errorf("invalid expiration: %w", err)
	}
	_ = binary.Write(&buf, binary.LittleEndian, uint32(expiration.Unix()))

	// Write the operations
	writeVarint(&buf, uint64(len(tx.Operations)))
	for i, op := range tx.Operations {
		if err := writeOperation(&buf, op); err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
	}

	// Extensions are not used by transfer transactions
	if len(tx.Extensions) != 0 {
		return nil, errors.New("transaction extensions are not supported")
	}
	writeVarint(&buf, 0)

	return buf.Bytes(), nil
}

func writeOperation(buf *bytes.Buffer, op types.Operation) error {
	switch {
	case op.Type == types.OperationTransfer && op.Transfer != nil:
		writeVarint(buf, opIDTransfer)
		writeString(buf, op.Transfer.From)
		writeString(buf, op.Transfer.To)
		if err := writeAsset(buf, op.Transfer.Amount); err != nil {
			return err
		}
		writeString(buf, op.Transfer.Memo)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedOperation, op.Type)
	}
}

func writeVarint(buf *bytes.Buffer, v uint64) {
	buf.Write(binary.AppendUvarint(nil, v))
}

func writeString(buf *bytes.Buffer, s string) {
	writeVarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

// writeAsset writes amount (int64 in base units), precision and a 7 byte
// zero padded symbol.
func writeAsset(buf *bytes.Buffer, asset string) error {
	match := assetPattern.FindStringSubmatch(asset)
	if match == nil {
		return fmt.Errorf("invalid asset %q", asset)
	}

	whole, fraction, symbol := match[1], match[2], match[3]
	amount, err := strconv.ParseInt(whole+fraction, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid asset amount %q: %w", asset, err)
	}
	if legacy, ok := legacySymbols[symbol]; ok {
		symbol = legacy
	}

	_ = binary.Write(buf, binary.LittleEndian, amount)
	buf.WriteByte(byte(len(fraction)))
	var padded [7]byte
	copy(padded[:], symbol)
	buf.Write(padded[:])
	return nil
}
