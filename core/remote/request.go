package remote

import (
	"context"

	"github.com/bmyte/jagcache/core/model"
	"github.com/bmyte/jagcache/rpc/protocol"
)

type result struct {
	data []byte
	err  error
}

// request travels from the outbound queue through the in-flight queue
// to the receiver, which completes done exactly once. The shutdown
// sentinel has no done channel.
type request struct {
	archive int
	group   int
	done    chan result
}

func newRequest(archive, group int) *request {
	return &request{
		archive: archive,
		group:   group,
		done:    make(chan result, 1),
	}
}

func shutdownSentinel() *request {
	return &request{archive: -1, group: -1}
}

func (r *request) isShutdownSentinel() bool {
	return r.done == nil
}

func (r *request) frame() protocol.Request {
	return protocol.Request{
		Urgent:  r.archive == model.MasterArchive,
		Archive: uint8(r.archive),
		Group:   uint16(r.group),
	}
}

// Future is the pending result of a request. Wait may be called once.
type Future struct {
	c   *Client
	req *request
}

// Wait blocks until the response arrived, the connection failed or ctx
// is done. Abandoning a Wait does not cancel the request; its response
// is still read off the connection.
func (f *Future) Wait(ctx context.Context) ([]byte, error) {
	select {
	case res := <-f.req.done:
		return res.data, res.err
	case <-f.c.dead:
		select {
		case res := <-f.req.done:
			return res.data, res.err
		default:
		}
		return nil, f.c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
