package arbor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborchain/arbor-go/model/arbor"
	"github.com/arborchain/arbor-go/utils/unittest"
)

func TestEpochState_WeightThreshold(t *testing.T) {
	cases := []struct {
		members   int
		threshold uint64
	}{
		{1, 1},
		{2, 2},
		{3, 3},
		{4, 3},
		{7, 5},
		{10, 7},
	}
	for _, c := range cases {
		committee, _ := unittest.CommitteeFixture(c.members)
		es := arbor.NewEpochState(1, committee)
		assert.Equal(t, c.threshold, es.WeightThreshold(), "committee of %d", c.members)
	}
}

func TestEpochState_CanonicalCommitteeOrder(t *testing.T) {
	committee, _ := unittest.CommitteeFixture(6)
	a := arbor.NewEpochState(3, committee)
	// same members in a different submission order must yield the same state
	reversed := make(arbor.IdentityList, 0, len(committee))
	for i := len(committee) - 1; i >= 0; i-- {
		reversed = append(reversed, committee[i])
	}
	b := arbor.NewEpochState(3, reversed)

	assert.Equal(t, a.ID(), b.ID())
	assert.Equal(t, a.Committee(), b.Committee())
}

func TestEpochState_Membership(t *testing.T) {
	committee, _ := unittest.CommitteeFixture(4)
	es := arbor.NewEpochState(1, committee)

	for _, iy := range committee {
		assert.True(t, es.IsMember(iy.NodeID))
	}
	assert.False(t, es.IsMember(unittest.IdentifierFixture()))
}

func TestEpochState_VerifySignature(t *testing.T) {
	es, keys := unittest.EpochStateFixture(1, 4)
	signer := es.Committee().NodeIDs()[0]
	msg := []byte("commit ledger info bytes")

	li := arbor.LedgerInfo{ConsensusDataHash: unittest.IdentifierFixture()}
	good := unittest.SignCommitVote(signer, keys[signer], li)
	require.NoError(t, es.VerifySignature(signer, li.SigningBytes(), good.Signature))

	// signature over different bytes fails
	require.Error(t, es.VerifySignature(signer, msg, good.Signature))
	// non-member fails even with a valid signature
	outsider, sk := unittest.IdentityFixture()
	bad := unittest.SignCommitVote(outsider.NodeID, sk, li)
	require.Error(t, es.VerifySignature(outsider.NodeID, li.SigningBytes(), bad.Signature))
}

func TestEpochState_CheckQuorum(t *testing.T) {
	es, _ := unittest.EpochStateFixture(1, 4)
	committee := es.Committee().NodeIDs()

	require.NoError(t, es.CheckQuorum(committee[:3]))
	require.NoError(t, es.CheckQuorum(committee))

	t.Run("insufficient weight", func(t *testing.T) {
		require.Error(t, es.CheckQuorum(committee[:2]))
	})
	t.Run("duplicated signer", func(t *testing.T) {
		signers := []arbor.Identifier{committee[0], committee[1], committee[1]}
		require.Error(t, es.CheckQuorum(signers))
	})
	t.Run("non-member signer", func(t *testing.T) {
		signers := []arbor.Identifier{committee[0], committee[1], unittest.IdentifierFixture()}
		require.Error(t, es.CheckQuorum(signers))
	})
}

func TestEpochState_VerifyQuorumCertificate(t *testing.T) {
	es, keys := unittest.EpochStateFixture(1, 4)
	ordered := unittest.OrderedBlocksFixture(1, 1, 1)
	executed := unittest.ExecutionResultFixture(ordered.Blocks)
	li := unittest.CommitLedgerInfoFixture(executed, ordered.OrderedProof)
	signers := es.Committee().NodeIDs()[:3]

	proof := unittest.QuorumCertificateFixture(li, es, keys, signers...)
	require.NoError(t, es.VerifyQuorumCertificate(proof))

	t.Run("wrong epoch", func(t *testing.T) {
		otherEpoch := arbor.NewEpochState(2, es.Committee())
		require.Error(t, otherEpoch.VerifyQuorumCertificate(proof))
	})
	t.Run("tampered ledger info", func(t *testing.T) {
		tampered := *proof
		tampered.LedgerInfo.CommitInfo.StateCommitment = unittest.IdentifierFixture()
		require.Error(t, es.VerifyQuorumCertificate(&tampered))
	})
	t.Run("tampered signer set", func(t *testing.T) {
		tampered := *proof
		tampered.SignerIDs = append([]arbor.Identifier{}, proof.SignerIDs...)
		tampered.SignerIDs[0] = es.Committee().NodeIDs()[3]
		require.Error(t, es.VerifyQuorumCertificate(&tampered))
	})
}

func TestLedgerInfo_SigningBytesStable(t *testing.T) {
	ordered := unittest.OrderedBlocksFixture(1, 1, 1)
	executed := unittest.ExecutionResultFixture(ordered.Blocks)
	li := unittest.CommitLedgerInfoFixture(executed, ordered.OrderedProof)

	assert.Equal(t, li.SigningBytes(), li.SigningBytes())
	assert.Equal(t, li.ID(), li.ID())

	other := li
	other.CommitInfo.Timestamp++
	assert.NotEqual(t, li.ID(), other.ID())
}
