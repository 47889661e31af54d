package metrics

import (
	"github.com/arborchain/arbor-go/module"
)

// NoopCollector discards all metrics. Used in tests.
type NoopCollector struct{}

var _ module.PipelineMetrics = (*NoopCollector)(nil)

func NewNoopCollector() *NoopCollector { return &NoopCollector{} }

func (nc *NoopCollector) BufferDepth(uint)                     {}
func (nc *NoopCollector) ItemsInState(uint, uint, uint, uint)  {}
func (nc *NoopCollector) VoteRebroadcast()                     {}
func (nc *NoopCollector) PipelineReset()                       {}
func (nc *NoopCollector) BlocksPersisted(uint)                 {}
func (nc *NoopCollector) CommitMessageDropped()                {}
