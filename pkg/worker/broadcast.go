package worker

import (
	"sync"

	"github.com/Sumatoshi-tech/tidalflow/pkg/progress"
)

// pointstampChange is the unit exchanged among workers.
type pointstampChange = progress.Change[progress.Pointstamp[progress.Epoch]]

type mailboxKey struct {
	worker  int
	channel int
}

// fabric is the in-process progress exchange: one mailbox per worker per
// dataflow channel. Sends and receives never block; a mutex covers the
// short append/drain sections.
type fabric struct {
	peers int

	mu        sync.Mutex
	mailboxes map[mailboxKey][]pointstampChange
}

func newFabric(peers int) *fabric {
	return &fabric{
		peers:     peers,
		mailboxes: make(map[mailboxKey][]pointstampChange),
	}
}

// progcaster returns the exchange endpoint for one worker on one channel.
func (f *fabric) progcaster(worker, channel int) *progcaster {
	return &progcaster{fabric: f, worker: worker, channel: channel}
}

// progcaster implements progress.Progcaster over the fabric. Every send is
// delivered to all workers, the sender included, so locally produced
// pointstamps return as post-exchange ones.
type progcaster struct {
	fabric  *fabric
	worker  int
	channel int
}

// Send broadcasts and drains the given updates.
func (p *progcaster) Send(updates *progress.ChangeBatch[progress.Pointstamp[progress.Epoch]]) {
	changes := updates.Drain()
	if len(changes) == 0 {
		return
	}

	p.fabric.mu.Lock()
	defer p.fabric.mu.Unlock()

	for worker := 0; worker < p.fabric.peers; worker++ {
		key := mailboxKey{worker: worker, channel: p.channel}
		p.fabric.mailboxes[key] = append(p.fabric.mailboxes[key], changes...)
	}
}

// Recv merges every received update into the accumulator.
func (p *progcaster) Recv(into *progress.ChangeBatch[progress.Pointstamp[progress.Epoch]]) {
	p.fabric.mu.Lock()
	key := mailboxKey{worker: p.worker, channel: p.channel}
	changes := p.fabric.mailboxes[key]
	p.fabric.mailboxes[key] = nil
	p.fabric.mu.Unlock()

	into.Extend(changes)
}
