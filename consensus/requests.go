package consensus

import (
	"strconv"

	"consensussim/event/events"
	"consensussim/interfaces"
	"consensussim/ledger"
	"consensussim/util/file"
	"consensussim/util/metrics"
)

type blockRequest struct {
	announcers []int
	next       int
	sentAt     int64
	token      interfaces.Token
	armed      bool
}

// blockRequests fetches announced blocks, asking the next announcer again
// whenever a block did not arrive within the retry delay.
type blockRequests struct {
	retryDelay int64
	sizes      file.SizesConfig
	pending    map[ledger.BlockId]*blockRequest
}

func newBlockRequests(retryDelay int64, sizes file.SizesConfig) *blockRequests {
	return &blockRequests{retryDelay: retryDelay, sizes: sizes, pending: make(map[ledger.BlockId]*blockRequest)}
}

func (r *blockRequests) Pending(id ledger.BlockId) bool {
	_, ok := r.pending[id]
	return ok
}

// Announce notes that from has the block and asks for it unless a request is running already.
func (r *blockRequests) Announce(node interfaces.INode, id ledger.BlockId, from int, world interfaces.IWorld) error {
	if req, ok := r.pending[id]; ok {
		for _, announcer := range req.announcers {
			if announcer == from {
				return nil
			}
		}
		req.announcers = append(req.announcers, from)
		return nil
	}
	req := &blockRequest{announcers: []int{from}}
	r.pending[id] = req
	return r.send(node, id, req, world)
}

func (r *blockRequests) send(node interfaces.INode, id ledger.BlockId, req *blockRequest, world interfaces.IWorld) error {
	peerId := req.announcers[req.next%len(req.announcers)]
	req.next++
	req.sentAt = world.Time()
	if err := world.Network().Send(node.Id(), peerId, NewGetBlock(id, r.sizes), world); err != nil {
		return err
	}
	if r.retryDelay <= 0 {
		return nil
	}
	timer := &interfaces.Timer{Kind: interfaces.RETRY_TIMER, Block: id}
	token, err := world.Schedule(events.NewTimerEvent(world.Time()+r.retryDelay, node.Id(), timer))
	if err != nil {
		return err
	}
	req.token, req.armed = token, true
	return nil
}

// Retry handles a RETRY_TIMER.
func (r *blockRequests) Retry(node interfaces.INode, timer *interfaces.Timer, world interfaces.IWorld) error {
	req, ok := r.pending[timer.Block]
	if !ok {
		return nil
	}
	req.armed = false
	world.Audit().Audit(node.Id(), timer.Kind, blockKey(timer.Block), "", world.Time())
	return r.send(node, timer.Block, req, world)
}

// Delivered closes the request of an arrived block.
func (r *blockRequests) Delivered(node interfaces.INode, id ledger.BlockId, world interfaces.IWorld) {
	req, ok := r.pending[id]
	if !ok {
		return
	}
	if req.armed {
		world.Cancel(req.token)
	}
	world.Metrics().Record(metrics.ROUND_TRIP, world.Time(), node.Id(), float64(world.Time()-req.sentAt))
	delete(r.pending, id)
}

// Forget drops the request without recording a round trip.
func (r *blockRequests) Forget(id ledger.BlockId, world interfaces.IWorld) {
	if req, ok := r.pending[id]; ok {
		if req.armed {
			world.Cancel(req.token)
		}
		delete(r.pending, id)
	}
}

func blockKey(id ledger.BlockId) string {
	return "b" + strconv.Itoa(int(id))
}
