package market

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/google/uuid"
	"lukechampine.com/blake3"
)

// orderIDGenerator derives order identifiers from the buyer, the placement
// time, a process-local sequence and a random salt. Two orders placed in the
// same millisecond therefore never share an id; a collision with an existing
// order is still detected by the catalog.
type orderIDGenerator struct {
	seq uint64
}

func (g *orderIDGenerator) next(buyer string, timestampMs uint64) string {
	g.seq++
	salt := uuid.New()
	buf := make([]byte, 0, len(buyer)+1+8+8+len(salt))
	buf = append(buf, buyer...)
	buf = append(buf, 0)
	buf = binary.BigEndian.AppendUint64(buf, timestampMs)
	buf = binary.BigEndian.AppendUint64(buf, g.seq)
	buf = append(buf, salt[:]...)
	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:])
}
