package cmd

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/bls"
	"go.dedis.ch/kyber/v3/util/random"

	"github.com/arborchain/arbor-go/consensus/commitpipe"
	"github.com/arborchain/arbor-go/model/arbor"
	"github.com/arborchain/arbor-go/model/messages"
	"github.com/arborchain/arbor-go/module"
	"github.com/arborchain/arbor-go/module/irrecoverable"
	"github.com/arborchain/arbor-go/module/local"
	"github.com/arborchain/arbor-go/module/metrics"
	"github.com/arborchain/arbor-go/module/util"
	"github.com/arborchain/arbor-go/network/mocknetwork"
)

// simNode is one committee member: a full pipeline plus the channel its
// persister reports committed block counts on.
type simNode struct {
	identity  *arbor.Identity
	pipeline  *commitpipe.Pipeline
	committed chan int
}

// simBackend derives state commitments from block ids only, so all nodes
// compute identical execution results. The block closing each epoch carries
// the state of the next epoch, which reuses the same committee.
type simBackend struct {
	committee   arbor.IdentityList
	epochLength uint64
}

func (b *simBackend) Execute(_ context.Context, blocks []*arbor.Block) ([]*arbor.ExecutedBlock, error) {
	executed := make([]*arbor.ExecutedBlock, 0, len(blocks))
	for _, block := range blocks {
		id := block.ID()
		eb := &arbor.ExecutedBlock{
			Block:           block,
			StateCommitment: arbor.HashToID(id[:]),
		}
		if block.Round == b.epochLength {
			eb.NextEpochState = arbor.NewEpochState(block.Epoch+1, b.committee)
		}
		executed = append(executed, eb)
	}
	return executed, nil
}

// simPersister logs each committed prefix and reports its size.
type simPersister struct {
	log       zerolog.Logger
	committed chan<- int
}

func (p *simPersister) Persist(blocks []*arbor.ExecutedBlock, proof *arbor.QuorumCertificate) error {
	p.log.Info().
		Uint64("epoch", proof.LedgerInfo.CommitInfo.Epoch).
		Uint64("round", proof.LedgerInfo.Round()).
		Int("blocks", len(blocks)).
		Int("signers", len(proof.SignerIDs)).
		Msg("prefix committed")
	p.committed <- len(blocks)
	return nil
}

func runSimulation(*cobra.Command, []string) error {
	numNodes := viper.GetInt("nodes")
	batchSize := viper.GetInt("batch-size")
	numEpochs := viper.GetInt("epochs")
	epochLength := viper.GetInt("epoch-length")
	metricsPort := viper.GetUint("metrics-port")

	if numNodes < 1 || batchSize < 1 || numEpochs < 1 || epochLength < 1 {
		return fmt.Errorf("nodes, batch-size, epochs and epoch-length must all be positive")
	}
	lvl, err := zerolog.ParseLevel(viper.GetString("loglevel"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log := zerolog.New(zerolog.NewConsoleWriter()).Level(lvl).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	signalerCtx, errChan := irrecoverable.WithSignaler(runCtx)

	collector := func(string) module.PipelineMetrics { return metrics.NewNoopCollector() }
	if metricsPort > 0 {
		server := metrics.NewServer(log, metricsPort)
		<-server.Ready()
		defer func() { <-server.Done() }()
		collector = func(node string) module.PipelineMetrics {
			registerer := prometheus.WrapRegistererWith(prometheus.Labels{"node": node}, prometheus.DefaultRegisterer)
			return metrics.NewPipelineCollector(registerer)
		}
	}

	committee, keys := generateCommittee(numNodes)
	epochState := arbor.NewEpochState(1, committee)
	backend := &simBackend{committee: committee, epochLength: uint64(epochLength)}
	hub := mocknetwork.NewHub()

	totalBlocks := numEpochs * epochLength
	nodes := make([]*simNode, 0, numNodes)
	components := make([]module.ReadyDoneAware, 0, numNodes)
	for _, identity := range epochState.Committee() {
		me, err := local.New(identity, keys[identity.NodeID])
		if err != nil {
			return fmt.Errorf("could not create local node: %w", err)
		}
		node := &simNode{identity: identity, committed: make(chan int, totalBlocks)}
		nodeLog := log.With().Str("node", identity.NodeID.String()[:8]).Logger()
		conduit := hub.Register(identity.NodeID, func(origin arbor.Identifier, event interface{}) error {
			return node.pipeline.Verifier.Process(origin, event)
		})
		persister := &simPersister{log: nodeLog, committed: node.committed}

		pipeline, err := commitpipe.NewPipeline(
			nodeLog,
			collector(identity.NodeID.String()[:8]),
			me,
			epochState,
			backend,
			persister,
			conduit,
		)
		if err != nil {
			return fmt.Errorf("could not create pipeline: %w", err)
		}
		node.pipeline = pipeline
		nodes = append(nodes, node)
		components = append(components, pipeline)

		pipeline.Start(signalerCtx)
	}
	select {
	case <-util.AllReady(components...):
	case err := <-errChan:
		return fmt.Errorf("pipeline failed to start: %w", err)
	case <-time.After(10 * time.Second):
		return fmt.Errorf("pipelines did not become ready")
	}
	log.Info().
		Int("nodes", numNodes).
		Int("epochs", numEpochs).
		Int("epoch_length", epochLength).
		Int("batch_size", batchSize).
		Msg("committee started")

	start := time.Now()
	height := uint64(1)
	parentID := arbor.ZeroID
	committedTotal := make([]int, len(nodes))
	for epoch := uint64(1); epoch <= uint64(numEpochs); epoch++ {
		var batches []*messages.OrderedBlocks
		batches, height, parentID = orderEpoch(epoch, epochLength, batchSize, height, parentID, committee)
		for _, batch := range batches {
			for _, node := range nodes {
				submitCtx, cancelSubmit := context.WithTimeout(runCtx, 10*time.Second)
				err := node.pipeline.Manager.SubmitOrderedBlocks(submitCtx, &messages.OrderedBlocks{
					Blocks:       batch.Blocks,
					OrderedProof: batch.OrderedProof,
				})
				cancelSubmit()
				if err != nil {
					return fmt.Errorf("could not submit ordered blocks: %w", err)
				}
			}
		}

		// every node must commit the full epoch before the next one is
		// ordered; the epoch rollover resets the pipelines in between
		target := int(epoch) * epochLength
		for i, node := range nodes {
			for committedTotal[i] < target {
				select {
				case n := <-node.committed:
					committedTotal[i] += n
				case err := <-errChan:
					return fmt.Errorf("pipeline failure: %w", err)
				case <-runCtx.Done():
					return runCtx.Err()
				case <-time.After(time.Minute):
					return fmt.Errorf("node %s stalled at %d of %d blocks",
						node.identity.NodeID.String()[:8], committedTotal[i], target)
				}
			}
		}
		log.Info().Uint64("epoch", epoch).Msg("epoch committed by all nodes")
	}
	log.Info().
		Int("blocks", totalBlocks).
		Dur("elapsed", time.Since(start)).
		Msg("simulation complete")

	cancel()
	select {
	case <-util.AllDone(components...):
	case <-time.After(10 * time.Second):
		return fmt.Errorf("pipelines did not shut down")
	}
	if err := util.WaitError(ctx, errChan); err != nil {
		return fmt.Errorf("pipeline failure during shutdown: %w", err)
	}
	return nil
}

// generateCommittee creates n validators with fresh staking keys and unit
// voting power.
func generateCommittee(n int) (arbor.IdentityList, map[arbor.Identifier]kyber.Scalar) {
	committee := make(arbor.IdentityList, 0, n)
	keys := make(map[arbor.Identifier]kyber.Scalar, n)
	for i := 0; i < n; i++ {
		sk, pk := bls.NewKeyPair(arbor.BLSSuite(), random.New())
		nodeID := randomIdentifier()
		committee = append(committee, &arbor.Identity{
			NodeID:        nodeID,
			Address:       fmt.Sprintf("%x.arbor.sim:2137", nodeID[:4]),
			Weight:        1,
			StakingPubKey: pk,
		})
		keys[nodeID] = sk
	}
	return committee, keys
}

// orderEpoch plays the ordering protocol for one epoch: it chains epochLength
// blocks starting at the given height, cuts them into batches of batchSize
// and certifies each batch with an ordering certificate over its last block.
// It returns the batches along with the height and parent id the next epoch
// continues from.
func orderEpoch(
	epoch uint64,
	epochLength int,
	batchSize int,
	startHeight uint64,
	parentID arbor.Identifier,
	committee arbor.IdentityList,
) ([]*messages.OrderedBlocks, uint64, arbor.Identifier) {
	var batches []*messages.OrderedBlocks
	height := startHeight
	round := uint64(1)
	for round <= uint64(epochLength) {
		n := batchSize
		if remaining := epochLength - int(round) + 1; remaining < n {
			n = remaining
		}
		blocks := make([]*arbor.ExecutedBlock, 0, n)
		var last *arbor.Block
		for i := 0; i < n; i++ {
			block := &arbor.Block{
				Epoch:       epoch,
				Round:       round,
				Height:      height,
				Timestamp:   uint64(time.Now().UnixMicro()),
				ParentID:    parentID,
				Proposer:    committee[int(round)%len(committee)].NodeID,
				PayloadHash: randomIdentifier(),
			}
			parentID = block.ID()
			last = block
			blocks = append(blocks, &arbor.ExecutedBlock{Block: block})
			round++
			height++
		}
		lastID := last.ID()
		batches = append(batches, &messages.OrderedBlocks{
			Blocks: blocks,
			OrderedProof: &arbor.QuorumCertificate{
				LedgerInfo: arbor.LedgerInfo{
					CommitInfo: arbor.BlockInfo{
						Epoch:   epoch,
						Round:   last.Round,
						Height:  last.Height,
						BlockID: lastID,
					},
					ConsensusDataHash: arbor.HashToID(append([]byte("ordering"), lastID[:]...)),
				},
			},
		})
	}
	return batches, height, parentID
}

func randomIdentifier() arbor.Identifier {
	var id arbor.Identifier
	_, err := rand.Read(id[:])
	if err != nil {
		panic(fmt.Sprintf("could not read random bytes: %v", err))
	}
	return id
}
