package arbor

import (
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v4"
	"golang.org/x/crypto/sha3"
)

// Identifier is the 32-byte content hash used to address entities
// (blocks, ledger infos, validators) throughout the commit pipeline.
type Identifier [32]byte

// ZeroID is the zero value of Identifier. It is used as the "no cursor" /
// "no parent" marker and never collides with the hash of a real entity.
var ZeroID = Identifier{}

// String returns the hex string representation of the identifier.
func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler, so identifiers render
// as hex in JSON and log output.
func (id Identifier) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// HashToID hashes arbitrary bytes into an identifier.
func HashToID(data []byte) Identifier {
	return Identifier(sha3.Sum256(data))
}

// MakeID creates an identifier as the hash of the canonical (msgpack)
// encoding of the given entity. Entities that contain non-encodable fields
// (e.g. public keys) must pass an encodable mirror struct instead.
func MakeID(entity interface{}) Identifier {
	data, err := msgpack.Marshal(entity)
	if err != nil {
		// encoding our own entity types never fails; anything else is a
		// programming error
		panic(fmt.Sprintf("could not encode entity for hashing: %v", err))
	}
	return HashToID(data)
}
