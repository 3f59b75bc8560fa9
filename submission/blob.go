package submission

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	gethkzg "github.com/ethereum/go-ethereum/crypto/kzg4844"
	gethparams "github.com/ethereum/go-ethereum/params"
)

// usableBytesPerFieldElement is 31, not 32: the top byte of each field
// element is left zero so the packed value stays below the BLS12-381
// scalar field modulus.
const usableBytesPerFieldElement = gethparams.BlobTxBytesPerFieldElement - 1

// maxBlobPayload is the largest byte payload a single blob can carry under
// field-element packing, after packBlob's 4-byte length prefix.
const maxBlobPayload = gethparams.BlobTxFieldElementsPerBlob*usableBytesPerFieldElement - 4

// buildBlobSidecar packs raw (the block's RLP-encoded transaction list)
// into a single KZG blob using fixed field-element packing, and computes
// its commitment and opening proof. It fails closed if raw does not fit in
// one blob: the fixed blob-coder has no multi-blob fallback.
func buildBlobSidecar(raw []byte) (*types.BlobTxSidecar, error) {
	if len(raw) > maxBlobPayload {
		return nil, fmt.Errorf("block content %d bytes exceeds single-blob capacity %d bytes", len(raw), maxBlobPayload)
	}

	var blob gethkzg.Blob
	packBlob(&blob, raw)

	commitment, err := gethkzg.BlobToCommitment(&blob)
	if err != nil {
		return nil, fmt.Errorf("compute blob commitment: %w", err)
	}
	proof, err := gethkzg.ComputeBlobProof(&blob, commitment)
	if err != nil {
		return nil, fmt.Errorf("compute blob proof: %w", err)
	}

	return types.NewBlobTxSidecar(
		types.BlobSidecarVersion0,
		[]gethkzg.Blob{blob},
		[]gethkzg.Commitment{commitment},
		[]gethkzg.Proof{proof},
	), nil
}

// packBlob writes a length-prefixed payload into blob using 31 usable
// payload bytes per 32-byte field element. The first 4 bytes of the first
// field element hold the big-endian payload length, so UnpackBlob can
// recover exactly the original bytes without guessing at padding.
func packBlob(blob *gethkzg.Blob, payload []byte) {
	lengthPrefixed := make([]byte, 4+len(payload))
	lengthPrefixed[0] = byte(len(payload) >> 24)
	lengthPrefixed[1] = byte(len(payload) >> 16)
	lengthPrefixed[2] = byte(len(payload) >> 8)
	lengthPrefixed[3] = byte(len(payload))
	copy(lengthPrefixed[4:], payload)

	for i := 0; i*usableBytesPerFieldElement < len(lengthPrefixed); i++ {
		start := i * usableBytesPerFieldElement
		end := min(start+usableBytesPerFieldElement, len(lengthPrefixed))
		copy(blob[i*gethparams.BlobTxBytesPerFieldElement+1:], lengthPrefixed[start:end])
	}
}

// UnpackBlob recovers the original payload bytes from a blob built by
// buildBlobSidecar. Exported for tests asserting the blob's payload keccak
// matches the batch content hash (scenario J).
func UnpackBlob(blob *gethkzg.Blob) []byte {
	fieldElements := gethparams.BlobTxFieldElementsPerBlob
	lengthPrefixed := make([]byte, 0, fieldElements*usableBytesPerFieldElement)
	for i := 0; i < fieldElements; i++ {
		start := i*gethparams.BlobTxBytesPerFieldElement + 1
		end := start + usableBytesPerFieldElement
		lengthPrefixed = append(lengthPrefixed, blob[start:end]...)
	}
	if len(lengthPrefixed) < 4 {
		return nil
	}
	length := int(lengthPrefixed[0])<<24 | int(lengthPrefixed[1])<<16 | int(lengthPrefixed[2])<<8 | int(lengthPrefixed[3])
	if 4+length > len(lengthPrefixed) {
		return nil
	}
	return lengthPrefixed[4 : 4+length]
}
