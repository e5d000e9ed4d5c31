package executor

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/intentline-hq/intentline/pkg/models"
)

// Commitment derives the settlement commitment for an execution attempt.
// It hashes the intent id, the attempt number, the canonical encoding of
// the executed steps, and the realized total output, so anyone holding the
// same inputs can recompute and check what was settled.
func Commitment(intentID common.Hash, attempt uint64, steps []models.ExecutionStep, totalOutput *big.Int) common.Hash {
	var buf bytes.Buffer
	buf.Write(intentID.Bytes())
	buf.Write(encodeUint64(attempt))
	for _, step := range steps {
		buf.WriteString(string(step.Action))
		buf.Write(step.Venue.Bytes())
		buf.Write(step.InputAsset.Bytes())
		buf.Write(step.OutputAsset.Bytes())
		buf.Write(encodeBig(step.Amount))
		buf.Write(encodeBig(step.MinOutput))
	}
	buf.Write(encodeBig(totalOutput))
	return crypto.Keccak256Hash(buf.Bytes())
}

// VerifyCommitment recomputes the commitment from the attempt inputs and
// compares it to the one recorded on the intent
func VerifyCommitment(intentID common.Hash, attempt uint64, steps []models.ExecutionStep, totalOutput *big.Int, commitment common.Hash) bool {
	return Commitment(intentID, attempt, steps, totalOutput) == commitment
}

func encodeUint64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

// encodeBig pads values to 32 bytes so adjacent fields cannot alias
func encodeBig(v *big.Int) []byte {
	if v == nil {
		return make([]byte, common.HashLength)
	}
	return common.BigToHash(v).Bytes()
}
