package signature

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/arborchain/arbor-go/model/arbor"
)

// Collector accumulates commit-vote signatures over one ledger info and
// detects when the accumulated voting power reaches a quorum. Signatures are
// expected to be verified before they are added; the collector only enforces
// committee membership and deduplication.
//
// The collector is not concurrency-safe: it is owned by the buffer item it
// belongs to and only ever touched by the pipeline driver.
type Collector struct {
	ledgerInfo arbor.LedgerInfo
	epochState *arbor.EpochState
	sigs       map[arbor.Identifier][]byte
	weight     uint64
}

// NewCollector returns an empty collector for signatures over the given
// ledger info.
func NewCollector(ledgerInfo arbor.LedgerInfo, epochState *arbor.EpochState) *Collector {
	return &Collector{
		ledgerInfo: ledgerInfo,
		epochState: epochState,
		sigs:       make(map[arbor.Identifier][]byte),
	}
}

// LedgerInfo returns the ledger info the collected signatures are over.
func (c *Collector) LedgerInfo() arbor.LedgerInfo {
	return c.ledgerInfo
}

// Add accumulates the signature of the given committee member. Adding a
// signer twice or adding a non-member is an error; the collector state is
// unchanged in both cases.
func (c *Collector) Add(author arbor.Identifier, sig []byte) error {
	if _, ok := c.sigs[author]; ok {
		return fmt.Errorf("signer %v has already contributed: %w", author, ErrDuplicatedSigner)
	}
	identity, ok := c.epochState.Committee().ByNodeID(author)
	if !ok {
		return fmt.Errorf("signer %v in epoch %d: %w", author, c.epochState.Epoch(), ErrInvalidSigner)
	}
	c.sigs[author] = sig
	c.weight += identity.Weight
	return nil
}

// HasSigned reports whether the given validator has already contributed.
func (c *Collector) HasSigned(author arbor.Identifier) bool {
	_, ok := c.sigs[author]
	return ok
}

// Weight returns the accumulated voting power.
func (c *Collector) Weight() uint64 {
	return c.weight
}

// ReachedQuorum reports whether the accumulated voting power holds at least
// 2f+1 of the epoch's total.
func (c *Collector) ReachedQuorum() bool {
	return c.weight >= c.epochState.WeightThreshold()
}

// Aggregate combines the collected signatures into a quorum certificate.
// It errors if the quorum has not been reached yet.
func (c *Collector) Aggregate() (*arbor.QuorumCertificate, error) {
	if !c.ReachedQuorum() {
		return nil, fmt.Errorf("cannot aggregate below quorum: %d accumulated, %d required",
			c.weight, c.epochState.WeightThreshold())
	}

	signers := make([]arbor.Identifier, 0, len(c.sigs))
	for signer := range c.sigs {
		signers = append(signers, signer)
	}
	sort.Slice(signers, func(i, j int) bool {
		return bytes.Compare(signers[i][:], signers[j][:]) < 0
	})

	sigs := make([][]byte, 0, len(signers))
	for _, signer := range signers {
		sigs = append(sigs, c.sigs[signer])
	}
	aggregated, err := arbor.AggregateBLSSignatures(sigs...)
	if err != nil {
		return nil, fmt.Errorf("could not aggregate %d signatures: %w", len(sigs), err)
	}

	return &arbor.QuorumCertificate{
		LedgerInfo: c.ledgerInfo,
		AggregatedSignature: arbor.AggregatedSignature{
			SignerIDs: signers,
			Signature: aggregated,
		},
	}, nil
}
