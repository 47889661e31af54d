// Package unittest provides fixtures and assertion helpers shared by the
// test suites of the commit pipeline.
package unittest

import (
	"crypto/rand"
	"fmt"
	"time"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/bls"
	"go.dedis.ch/kyber/v3/util/random"

	"github.com/arborchain/arbor-go/model/arbor"
	"github.com/arborchain/arbor-go/model/messages"
	"github.com/arborchain/arbor-go/module/signature"
)

// IdentifierFixture returns a random identifier.
func IdentifierFixture() arbor.Identifier {
	var id arbor.Identifier
	_, err := rand.Read(id[:])
	if err != nil {
		panic(fmt.Sprintf("could not read random bytes: %v", err))
	}
	return id
}

// StakingKeyFixture generates a fresh BLS key pair.
func StakingKeyFixture() (kyber.Scalar, kyber.Point) {
	return bls.NewKeyPair(arbor.BLSSuite(), random.New())
}

// IdentityFixture returns a validator identity with a fresh staking key and
// unit voting power. The private key is returned alongside so tests can sign
// on the identity's behalf.
func IdentityFixture() (*arbor.Identity, kyber.Scalar) {
	sk, pk := StakingKeyFixture()
	nodeID := IdentifierFixture()
	identity := &arbor.Identity{
		NodeID:        nodeID,
		Address:       fmt.Sprintf("%x.arbor.test:2137", nodeID[:4]),
		Weight:        1,
		StakingPubKey: pk,
	}
	return identity, sk
}

// CommitteeFixture returns a committee of n validators with real staking keys
// and the private key of each member, keyed by node id.
func CommitteeFixture(n int) (arbor.IdentityList, map[arbor.Identifier]kyber.Scalar) {
	committee := make(arbor.IdentityList, 0, n)
	keys := make(map[arbor.Identifier]kyber.Scalar, n)
	for i := 0; i < n; i++ {
		identity, sk := IdentityFixture()
		committee = append(committee, identity)
		keys[identity.NodeID] = sk
	}
	return committee, keys
}

// EpochStateFixture returns the epoch state of a fresh n-member committee,
// together with the members' private keys.
func EpochStateFixture(epoch uint64, n int) (*arbor.EpochState, map[arbor.Identifier]kyber.Scalar) {
	committee, keys := CommitteeFixture(n)
	return arbor.NewEpochState(epoch, committee), keys
}

// BlockFixtureOpt mutates a block fixture before it is finalized.
type BlockFixtureOpt func(*arbor.Block)

// WithProposer sets the proposer of a block fixture.
func WithProposer(proposer arbor.Identifier) BlockFixtureOpt {
	return func(b *arbor.Block) {
		b.Proposer = proposer
	}
}

// BlockFixture returns a block at the given position in the chain.
func BlockFixture(epoch uint64, round uint64, height uint64, parentID arbor.Identifier, opts ...BlockFixtureOpt) *arbor.Block {
	block := &arbor.Block{
		Epoch:       epoch,
		Round:       round,
		Height:      height,
		Timestamp:   uint64(time.Now().UnixMicro()),
		ParentID:    parentID,
		Proposer:    IdentifierFixture(),
		PayloadHash: IdentifierFixture(),
	}
	for _, opt := range opts {
		opt(block)
	}
	return block
}

// ChainFixture returns n linked blocks starting at the given round and height.
func ChainFixture(epoch uint64, startRound uint64, startHeight uint64, n int, opts ...BlockFixtureOpt) []*arbor.Block {
	blocks := make([]*arbor.Block, 0, n)
	parentID := IdentifierFixture()
	for i := 0; i < n; i++ {
		block := BlockFixture(epoch, startRound+uint64(i), startHeight+uint64(i), parentID, opts...)
		blocks = append(blocks, block)
		parentID = block.ID()
	}
	return blocks
}

// CandidatesFixture wraps blocks as unexecuted candidates.
func CandidatesFixture(blocks []*arbor.Block) []*arbor.ExecutedBlock {
	candidates := make([]*arbor.ExecutedBlock, 0, len(blocks))
	for _, block := range blocks {
		candidates = append(candidates, &arbor.ExecutedBlock{Block: block})
	}
	return candidates
}

// ExecutionResultFixture fills in random state commitments for the given
// candidates, modelling a successful execution.
func ExecutionResultFixture(candidates []*arbor.ExecutedBlock) []*arbor.ExecutedBlock {
	executed := make([]*arbor.ExecutedBlock, 0, len(candidates))
	for _, candidate := range candidates {
		executed = append(executed, &arbor.ExecutedBlock{
			Block:           candidate.Block,
			StateCommitment: IdentifierFixture(),
			NextEpochState:  candidate.NextEpochState,
		})
	}
	return executed
}

// OrderedBlocksFixture wraps a chain of n candidate blocks into the unit of
// work the ordering protocol submits, with an ordering certificate over the
// last block.
func OrderedBlocksFixture(epoch uint64, startRound uint64, n int, opts ...BlockFixtureOpt) *messages.OrderedBlocks {
	blocks := ChainFixture(epoch, startRound, startRound, n, opts...)
	last := blocks[n-1]
	orderedLI := arbor.LedgerInfo{
		CommitInfo: arbor.BlockInfo{
			Epoch:   epoch,
			Round:   last.Round,
			Height:  last.Height,
			BlockID: last.ID(),
		},
		ConsensusDataHash: IdentifierFixture(),
	}
	return &messages.OrderedBlocks{
		Blocks: CandidatesFixture(blocks),
		OrderedProof: &arbor.QuorumCertificate{
			LedgerInfo: orderedLI,
		},
	}
}

// CommitLedgerInfoFixture derives the commit ledger info the pipeline would
// build for the given executed blocks and ordering certificate.
func CommitLedgerInfoFixture(executed []*arbor.ExecutedBlock, orderedProof *arbor.QuorumCertificate) arbor.LedgerInfo {
	return arbor.LedgerInfo{
		CommitInfo:        executed[len(executed)-1].BlockInfo(),
		ConsensusDataHash: orderedProof.LedgerInfo.ConsensusDataHash,
	}
}

// SignCommitVote produces the given member's vote over a commit ledger info.
func SignCommitVote(nodeID arbor.Identifier, sk kyber.Scalar, li arbor.LedgerInfo) *messages.CommitVote {
	sig, err := bls.Sign(arbor.BLSSuite(), sk, li.SigningBytes())
	if err != nil {
		panic(fmt.Sprintf("could not sign ledger info: %v", err))
	}
	return &messages.CommitVote{
		Author:     nodeID,
		LedgerInfo: li,
		Signature:  sig,
	}
}

// QuorumCertificateFixture aggregates votes by the given signers into a
// commit proof for the ledger info. The signers must hold a quorum.
func QuorumCertificateFixture(
	li arbor.LedgerInfo,
	epochState *arbor.EpochState,
	keys map[arbor.Identifier]kyber.Scalar,
	signers ...arbor.Identifier,
) *arbor.QuorumCertificate {
	collector := signature.NewCollector(li, epochState)
	for _, signer := range signers {
		vote := SignCommitVote(signer, keys[signer], li)
		err := collector.Add(vote.Author, vote.Signature)
		if err != nil {
			panic(fmt.Sprintf("could not add vote: %v", err))
		}
	}
	proof, err := collector.Aggregate()
	if err != nil {
		panic(fmt.Sprintf("could not aggregate quorum certificate: %v", err))
	}
	return proof
}
