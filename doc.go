// Package meshlink transfers physical quantities between two
// independently partitioned surface meshes. For every locally owned
// target vertex it finds the k geometrically nearest donor vertices,
// which may live on any rank of the process group, and computes
// normalized inverse-distance interpolation weights, without ever
// materializing the whole mesh on one process.
//
// # Quick Start
//
//	donorZone, _ := mesh.NewZone(2)
//	targetZone, _ := mesh.NewZone(2)
//	// ... attach the local marker pieces ...
//
//	ip, _ := meshlink.New(donorZone, targetZone, c,
//	    meshlink.WithNumNeighbors(4),
//	    meshlink.WithInterfaces(config.InterfacePair{Donor: "blade", Target: "film_inlet"}),
//	)
//	if err := ip.Run(ctx); err != nil {
//	    // *ConfigError names the offending marker pair
//	}
//
//	// results, per owned target vertex:
//	marker := targetZone.Marker(idx)
//	for _, d := range marker.Donors(iVertex) {
//	    fmt.Println(d.GlobalIndex, d.Rank, d.Weight)
//	}
//
// c is a comm.Communicator: localgroup for single-host groups and
// tests, tcpgroup for groups spread across hosts.
//
// # Model
//
// Run iterates over the configured interface marker pairs. Per pair,
// the donor vertices of all ranks are collected into a replicated
// buffer through blocking collective exchanges; every rank must reach
// those calls. The per-vertex search then fans out across worker
// threads, each with private scratch storage, so results for different
// vertices may complete in any order while remaining deterministic:
// distance ties are broken by donor global index.
package meshlink
