package meshlink

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/meshlink/comm"
	"github.com/hupe1980/meshlink/config"
	"github.com/hupe1980/meshlink/distance"
	"github.com/hupe1980/meshlink/gather"
	"github.com/hupe1980/meshlink/idw"
	"github.com/hupe1980/meshlink/knn"
	"github.com/hupe1980/meshlink/mesh"
)

// Interpolator computes nearest-neighbor transfer coefficients between
// the local partitions of a donor and a target zone.
type Interpolator struct {
	donor   *mesh.Zone
	target  *mesh.Zone
	comm    comm.Communicator
	pairs   []config.InterfacePair
	k       int
	workers int
	logger  *Logger
	metrics MetricsCollector
}

// New creates an Interpolator for one zone pair. Both zones hold the
// local partitions only; the same marker pairs must be configured on
// every rank of the group.
func New(donor, target *mesh.Zone, c comm.Communicator, optFns ...Option) (*Interpolator, error) {
	if donor == nil || target == nil {
		return nil, fmt.Errorf("meshlink: donor and target zones are required")
	}
	if c == nil {
		return nil, fmt.Errorf("meshlink: communicator is required")
	}
	if donor.Dim() != target.Dim() {
		return nil, fmt.Errorf("meshlink: donor dimension %d does not match target dimension %d",
			donor.Dim(), target.Dim())
	}

	o := applyOptions(optFns)
	if o.numNeighbors < 1 {
		return nil, fmt.Errorf("meshlink: neighbor count must be at least 1, got %d", o.numNeighbors)
	}
	if o.workers <= 0 {
		o.workers = runtime.NumCPU()
	}

	return &Interpolator{
		donor:   donor,
		target:  target,
		comm:    c,
		pairs:   o.interfaces,
		k:       o.numNeighbors,
		workers: o.workers,
		logger:  o.logger.WithRank(c.Rank()),
		metrics: o.metrics,
	}, nil
}

// Run computes transfer coefficients for every configured interface
// marker pair and writes them onto the target zone's vertices. It is a
// collective operation: every rank of the group must call Run with the
// same pair list, and each pair acts as a synchronization point.
//
// Once a collective exchange has started there is no cancellation; ctx
// is only consulted between exchanges.
func (ip *Interpolator) Run(ctx context.Context) error {
	for _, pair := range ip.pairs {
		if err := ip.runPair(ctx, pair); err != nil {
			return err
		}
	}
	return nil
}

// runPair handles one interface marker pair end to end: presence
// exchange, donor gather, local search and weighting.
func (ip *Interpolator) runPair(ctx context.Context, pair config.InterfacePair) error {
	logger := ip.logger.WithPair(pair.Donor, pair.Target)
	start := time.Now()

	donorIdx, donorHere := ip.donor.MarkerIndex(pair.Donor)
	targetIdx, targetHere := ip.target.MarkerIndex(pair.Target)

	_, targetAnywhere, err := ip.exchangePresence(ctx, donorHere, targetHere)
	if err != nil {
		ip.metrics.RecordPair(0, time.Since(start), err)
		logger.LogPair(ctx, ip.k, 0, time.Since(start), err)
		return err
	}

	// No rank holds a piece of the target marker, so there is nothing
	// to interpolate onto; all ranks derive the same verdict from the
	// replicated flags and skip without further communication.
	if !targetAnywhere {
		logger.LogSkip(ctx)
		return nil
	}

	buf, err := ip.collectDonors(ctx, donorIdx, donorHere)
	if err != nil {
		ip.metrics.RecordPair(0, time.Since(start), err)
		logger.LogPair(ctx, ip.k, 0, time.Since(start), err)
		return err
	}

	total := buf.Total()
	if total == 0 {
		// An interface with targets but no donors anywhere is a
		// misconfiguration; fail loudly rather than emit empty
		// results.
		err := configError(pair.Donor, pair.Target, ErrNoDonors)
		ip.metrics.RecordPair(0, time.Since(start), err)
		logger.LogPair(ctx, ip.k, 0, time.Since(start), err)
		return err
	}
	if total < ip.k {
		err := configError(pair.Donor, pair.Target,
			fmt.Errorf("%w: %d donors, k=%d", ErrInsufficientDonors, total, ip.k))
		ip.metrics.RecordPair(0, time.Since(start), err)
		logger.LogPair(ctx, ip.k, 0, time.Since(start), err)
		return err
	}

	// No further collectives in this pair; ranks without a local
	// target piece are done.
	var processed int
	if targetHere {
		marker := ip.target.Marker(targetIdx)
		if err := ip.interpolateMarker(ctx, marker, buf); err != nil {
			ip.metrics.RecordPair(0, time.Since(start), err)
			logger.LogPair(ctx, ip.k, 0, time.Since(start), err)
			return err
		}
		processed = marker.NumOwned()
	}

	ip.metrics.RecordPair(processed, time.Since(start), nil)
	logger.LogPair(ctx, ip.k, processed, time.Since(start), nil)

	return nil
}

// exchangePresence tells every rank whether the pair's markers exist
// anywhere in the group.
func (ip *Interpolator) exchangePresence(ctx context.Context, donorHere, targetHere bool) (donorAnywhere, targetAnywhere bool, err error) {
	send := []uint64{boolFlag(donorHere), boolFlag(targetHere)}
	recv := make([]uint64, 2*ip.comm.Size())
	if err := ip.comm.AllgatherUint64(ctx, send, recv); err != nil {
		return false, false, err
	}

	for i := 0; i < len(recv); i += 2 {
		donorAnywhere = donorAnywhere || recv[i] != 0
		targetAnywhere = targetAnywhere || recv[i+1] != 0
	}
	return donorAnywhere, targetAnywhere, nil
}

// collectDonors gathers the owned donor vertices of all ranks into a
// replicated buffer. Halo copies are excluded so every donor appears
// exactly once in the group-wide candidate set.
func (ip *Interpolator) collectDonors(ctx context.Context, donorIdx int, donorHere bool) (*gather.DonorBuffer, error) {
	start := time.Now()

	var coords []float64
	var ids []int64
	if donorHere {
		marker := ip.donor.Marker(donorIdx)
		coords = make([]float64, 0, marker.NumOwned()*ip.donor.Dim())
		ids = make([]int64, 0, marker.NumOwned())
		for i := 0; i < marker.NumVertices(); i++ {
			if !marker.Owned(i) {
				continue
			}
			v := marker.Vertex(i)
			coords = append(coords, v.Coord...)
			ids = append(ids, v.GlobalIndex)
		}
	}

	buf, err := gather.Collect(ctx, ip.comm, ip.donor.Dim(), coords, ids)
	if err != nil {
		ip.metrics.RecordGather(0, time.Since(start), err)
		ip.logger.LogGather(ctx, 0, time.Since(start), err)
		return nil, err
	}

	ip.metrics.RecordGather(buf.Total(), time.Since(start), nil)
	ip.logger.LogGather(ctx, buf.Total(), time.Since(start), nil)

	return buf, nil
}

// interpolateMarker fans the local target vertices out across workers
// in contiguous chunks. Each worker owns a scratch buffer sized to the
// total donor count, reused across its vertices; each vertex's result
// slot is written by exactly one worker.
func (ip *Interpolator) interpolateMarker(ctx context.Context, marker *mesh.Marker, buf *gather.DonorBuffer) error {
	nVertex := marker.NumVertices()
	if nVertex == 0 {
		return nil
	}

	workers := ip.workers
	if workers > nVertex {
		workers = nVertex
	}
	chunk := (nVertex + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, nVertex)
		if lo >= hi {
			break
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			scratch := knn.NewScratch(buf.Total())
			dists := make([]float64, ip.k)
			weights := make([]float64, ip.k)

			for i := lo; i < hi; i++ {
				if !marker.Owned(i) {
					continue
				}
				if err := ip.interpolateVertex(marker, i, buf, scratch, dists, weights); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// interpolateVertex runs the search-and-weight kernel for one target
// vertex.
func (ip *Interpolator) interpolateVertex(marker *mesh.Marker, i int, buf *gather.DonorBuffer, scratch *knn.Scratch, dists, weights []float64) error {
	target := marker.Vertex(i)

	scratch.Reset()
	buf.ForEach(func(rank int, globalIndex int64, coord []float64) {
		scratch.Append(knn.Record{
			Dist:        distance.SquaredL2(target.Coord, coord),
			GlobalIndex: globalIndex,
			Rank:        rank,
		})
	})

	nearest, err := scratch.SelectNearest(ip.k)
	if err != nil {
		return err
	}

	for j, r := range nearest {
		dists[j] = r.Dist
	}
	idw.WeightsInto(dists, weights)

	donors := make([]mesh.DonorCoeff, ip.k)
	for j, r := range nearest {
		donors[j] = mesh.DonorCoeff{
			GlobalIndex: r.GlobalIndex,
			Rank:        r.Rank,
			Weight:      weights[j],
		}
	}
	marker.SetDonors(i, donors)

	return nil
}

func boolFlag(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
