package grace

import "encoding/binary"

// EpochsSize is the wire size of an encoded Epochs value: two u64 fields.
const EpochsSize = 16

// EncodeEpochs serializes e as little-endian CurrentEpoch followed by
// little-endian ReclaimEpoch, independent of host byte order.
func EncodeEpochs(e Epochs) []byte {
	buf := make([]byte, EpochsSize)
	binary.LittleEndian.PutUint64(buf[0:8], e.CurrentEpoch)
	binary.LittleEndian.PutUint64(buf[8:16], e.ReclaimEpoch)
	return buf
}

// DecodeEpochs parses the form EncodeEpochs produces. buf must be at
// least EpochsSize bytes.
func DecodeEpochs(buf []byte) (Epochs, bool) {
	if len(buf) < EpochsSize {
		return Epochs{}, false
	}
	return Epochs{
		CurrentEpoch: binary.LittleEndian.Uint64(buf[0:8]),
		ReclaimEpoch: binary.LittleEndian.Uint64(buf[8:16]),
	}, true
}
