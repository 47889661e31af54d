package arbor

import (
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/sign/bls"
)

// blsSuite is the pairing suite used for all commit-vote signatures.
// The suite itself is stateless and safe for concurrent use.
var blsSuite = bn256.NewSuite()

// BLSSuite returns the pairing suite used for commit-vote signatures.
func BLSSuite() *bn256.Suite {
	return blsSuite
}

// VerifyBLS checks a single BLS signature over msg against the given public key.
func VerifyBLS(pub kyber.Point, msg []byte, sig []byte) error {
	return bls.Verify(blsSuite, pub, msg, sig)
}

// AggregateBLSSignatures combines individual BLS signatures over the same
// message into one aggregate signature.
func AggregateBLSSignatures(sigs ...[]byte) ([]byte, error) {
	return bls.AggregateSignatures(blsSuite, sigs...)
}

// VerifyAggregatedBLS checks an aggregate signature over msg against the
// public keys of all signers.
func VerifyAggregatedBLS(pubs []kyber.Point, msg []byte, sig []byte) error {
	aggKey := bls.AggregatePublicKeys(blsSuite, pubs...)
	return bls.Verify(blsSuite, aggKey, msg, sig)
}
