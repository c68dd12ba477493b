// Package tcpgroup provides a comm.Communicator for process groups
// spread across hosts, built on a full mesh of TCP links.
//
// Every collective exchanges one frame per peer: a gob-encoded payload
// compressed with s2 and length-prefixed on the wire. Frames carry the
// collective's sequence number and operation name so that diverging
// groups (ranks arriving at different collectives) are detected
// instead of silently mixing buffers.
package tcpgroup

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/klauspost/compress/s2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/meshlink/comm"
)

// maxFrameSize bounds a single decompressed frame. Donor buffers for a
// single marker pair should stay well below this.
const maxFrameSize = 1 << 30

// frame is the unit of exchange. Exactly one of U, I, F is set,
// matching the collective's element type.
type frame struct {
	Seq uint64
	Op  string
	U   []uint64
	I   []int64
	F   []float64
}

// Comm is one rank's endpoint of a TCP group. It implements
// comm.Communicator.
type Comm struct {
	rank  int
	size  int
	seq   uint64
	conns []net.Conn // conns[i] links to rank i, nil for self
	muxes []sync.Mutex
	ln    net.Listener
}

var _ comm.Communicator = (*Comm)(nil)

// Dial joins the group as the given rank. addrs lists the listen
// address of every rank, in rank order; the group size is len(addrs).
// Dial blocks until the full mesh is connected: rank i accepts
// connections from all higher ranks and dials all lower ones.
func Dial(ctx context.Context, rank int, addrs []string) (*Comm, error) {
	size := len(addrs)
	if size <= 0 {
		return nil, fmt.Errorf("tcpgroup: empty address list")
	}
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("tcpgroup: rank %d out of range for group size %d", rank, size)
	}

	ln, err := net.Listen("tcp", addrs[rank])
	if err != nil {
		return nil, fmt.Errorf("tcpgroup: listen %s: %w", addrs[rank], err)
	}

	c := &Comm{
		rank:  rank,
		size:  size,
		conns: make([]net.Conn, size),
		muxes: make([]sync.Mutex, size),
		ln:    ln,
	}

	var g errgroup.Group

	// Accept one connection from every higher rank. The dialer
	// identifies itself with a single uint32 handshake.
	g.Go(func() error {
		for n := 0; n < size-1-rank; n++ {
			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			var peer uint32
			if err := binary.Read(conn, binary.LittleEndian, &peer); err != nil {
				conn.Close()
				return err
			}
			if int(peer) <= rank || int(peer) >= size || c.conns[peer] != nil {
				conn.Close()
				return fmt.Errorf("tcpgroup: unexpected handshake from rank %d", peer)
			}
			c.conns[peer] = conn
		}
		return nil
	})

	// Dial every lower rank, retrying until its listener is up.
	for peer := 0; peer < rank; peer++ {
		peer := peer
		g.Go(func() error {
			conn, err := dialRetry(ctx, addrs[peer])
			if err != nil {
				return err
			}
			if err := binary.Write(conn, binary.LittleEndian, uint32(rank)); err != nil {
				conn.Close()
				return err
			}
			c.conns[peer] = conn
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.Close()
		return nil, fmt.Errorf("tcpgroup: mesh setup failed: %w", err)
	}

	return c, nil
}

func dialRetry(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Close tears down the mesh. No collectives may be issued afterwards.
func (c *Comm) Close() error {
	var first error
	if c.ln != nil {
		first = c.ln.Close()
	}
	for _, conn := range c.conns {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Rank returns the local rank.
func (c *Comm) Rank() int { return c.rank }

// Size returns the group size.
func (c *Comm) Size() int { return c.size }

// AllgatherUint64 implements comm.Communicator.
func (c *Comm) AllgatherUint64(ctx context.Context, send, recv []uint64) error {
	return allgather(ctx, c, "AllgatherUint64", send, recv,
		func(f *frame, buf []uint64) { f.U = buf },
		func(f *frame) []uint64 { return f.U },
	)
}

// AllgatherInt64 implements comm.Communicator.
func (c *Comm) AllgatherInt64(ctx context.Context, send, recv []int64) error {
	return allgather(ctx, c, "AllgatherInt64", send, recv,
		func(f *frame, buf []int64) { f.I = buf },
		func(f *frame) []int64 { return f.I },
	)
}

// AllgatherFloat64 implements comm.Communicator.
func (c *Comm) AllgatherFloat64(ctx context.Context, send, recv []float64) error {
	return allgather(ctx, c, "AllgatherFloat64", send, recv,
		func(f *frame, buf []float64) { f.F = buf },
		func(f *frame) []float64 { return f.F },
	)
}

func allgather[T uint64 | int64 | float64](
	ctx context.Context, c *Comm, op string, send, recv []T,
	set func(*frame, []T), get func(*frame) []T,
) error {
	if err := ctx.Err(); err != nil {
		return comm.NewProtocolError(c.rank, op, err)
	}
	if err := comm.ValidateBuffers(c.size, len(send), len(recv)); err != nil {
		return comm.NewProtocolError(c.rank, op, err)
	}

	seq := c.seq
	c.seq++

	stride := len(send)
	copy(recv[c.rank*stride:(c.rank+1)*stride], send)

	out := frame{Seq: seq, Op: op}
	set(&out, send)
	wire, err := encodeFrame(&out)
	if err != nil {
		return comm.NewProtocolError(c.rank, op, err)
	}

	var g errgroup.Group
	for peer := 0; peer < c.size; peer++ {
		peer := peer
		if peer == c.rank {
			continue
		}

		g.Go(func() error {
			c.muxes[peer].Lock()
			defer c.muxes[peer].Unlock()
			return writeFrame(c.conns[peer], wire)
		})
		g.Go(func() error {
			in, err := readFrame(c.conns[peer])
			if err != nil {
				return err
			}
			if in.Seq != seq || in.Op != op {
				return fmt.Errorf("rank %d is in %s (seq %d), local %s (seq %d)", peer, in.Op, in.Seq, op, seq)
			}
			buf := get(in)
			if len(buf) != stride {
				return fmt.Errorf("rank %d contributed %d elements, want %d", peer, len(buf), stride)
			}
			copy(recv[peer*stride:(peer+1)*stride], buf)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return comm.NewProtocolError(c.rank, op, err)
	}

	return nil
}

func encodeFrame(f *frame) ([]byte, error) {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(f); err != nil {
		return nil, err
	}

	compressed := s2.Encode(nil, raw.Bytes())

	wire := make([]byte, 4+len(compressed))
	binary.LittleEndian.PutUint32(wire, uint32(len(compressed)))
	copy(wire[4:], compressed)

	return wire, nil
}

func writeFrame(conn net.Conn, wire []byte) error {
	_, err := conn.Write(wire)
	return err
}

func readFrame(conn net.Conn) (*frame, error) {
	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, err
	}

	n := binary.LittleEndian.Uint32(header[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", n)
	}

	compressed := make([]byte, n)
	if _, err := io.ReadFull(conn, compressed); err != nil {
		return nil, err
	}

	raw, err := s2.Decode(nil, compressed)
	if err != nil {
		return nil, err
	}

	var f frame
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&f); err != nil {
		return nil, err
	}

	return &f, nil
}
