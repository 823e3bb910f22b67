/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"sync"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/coupledsim/gocpl/com"
	"github.com/coupledsim/gocpl/config"
	"github.com/coupledsim/gocpl/cplscheme"
	"github.com/coupledsim/gocpl/m2n"
	"github.com/coupledsim/gocpl/mesh"
	"github.com/coupledsim/gocpl/partition"
)

type ModelCoupling struct {
	CouplingFile string
	FluidRanks   int
	SolidRanks   int
	NVertices    int
	Compliance   float64
	Profile      bool
}

// demoCmd represents the demo command
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Runs a two participant coupling fully in process",
	Long: `
Runs both participants of a fluid-structure coupling as goroutine rank
groups in one process: bounding box exchange, mesh re-partitioning and one
pressure/displacement round trip over the gather/scatter transfer layer.

gocpl demo `,
	Run: func(cmd *cobra.Command, args []string) {
		mc := &ModelCoupling{}
		fmt.Println("demo called")
		mc.CouplingFile, _ = cmd.Flags().GetString("couplingFile")
		mc.FluidRanks, _ = cmd.Flags().GetInt("fluidRanks")
		mc.SolidRanks, _ = cmd.Flags().GetInt("solidRanks")
		mc.NVertices, _ = cmd.Flags().GetInt("vertices")
		mc.Compliance, _ = cmd.Flags().GetFloat64("compliance")
		mc.Profile, _ = cmd.Flags().GetBool("profile")
		cc := processCouplingInput(mc)
		if mc.Profile {
			defer profile.Start(profile.CPUProfile).Stop()
		}
		if err := RunDemo(mc, cc); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().StringP("couplingFile", "I", "", "YAML file with the coupling configuration, built-in defaults otherwise")
	demoCmd.Flags().IntP("fluidRanks", "f", 2, "number of ranks of the fluid participant")
	demoCmd.Flags().IntP("solidRanks", "s", 2, "number of ranks of the solid participant")
	demoCmd.Flags().IntP("vertices", "n", 16, "number of interface vertices")
	demoCmd.Flags().Float64P("compliance", "c", 0.01, "displacement produced per unit of pressure")
	demoCmd.Flags().BoolP("profile", "p", false, "write a CPU profile of the run")
}

func processCouplingInput(mc *ModelCoupling) (cc *config.CouplingConfig) {
	var (
		err  error
		data []byte
	)
	if mc.FluidRanks < 1 || mc.SolidRanks < 1 {
		fmt.Printf("error: both participants need at least one rank\n")
		os.Exit(1)
	}
	if mc.NVertices < mc.FluidRanks || mc.NVertices < mc.SolidRanks {
		fmt.Printf("error: need at least one interface vertex per rank\n")
		os.Exit(1)
	}
	if len(mc.CouplingFile) != 0 {
		if data, err = ioutil.ReadFile(mc.CouplingFile); err != nil {
			panic(err)
		}
	} else {
		data = []byte(`
Title: "Channel FSI Demo"
Acceptor: Fluid
Requester: Solid
GeometricFilter: broadcast-filter
SafetyFactor: 0.1
Meshes:
  - Name: Fluid-Interface
    Dimensions: 2
  - Name: Solid-Interface
    Dimensions: 2
Data:
  - Name: Pressure
    Dimension: 1
  - Name: Displacement
    Dimension: 1
Exchanges:
  - Pressure
  - Displacement
`)
	}
	cc = &config.CouplingConfig{}
	if err = cc.Parse(data); err != nil {
		panic(err)
	}
	cc.Print()
	if len(cc.Meshes) < 2 {
		fmt.Printf("error: the demo needs one mesh per participant\n")
		os.Exit(1)
	}
	return
}

// RunDemo couples the two participants through in-process channels. Each
// rank of each participant runs as its own goroutine.
func RunDemo(mc *ModelCoupling, cc *config.CouplingConfig) error {
	masters := com.NewChannelGroup(2)
	fluidGroup := com.NewChannelGroup(mc.FluidRanks)
	solidGroup := com.NewChannelGroup(mc.SolidRanks)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	collect := func(side string, rank int, err error) {
		if err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s rank %d: %w", side, rank, err))
			mu.Unlock()
		}
	}
	for rank := 0; rank < mc.FluidRanks; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			var masterCom com.Communication
			if rank == com.MasterRank {
				masterCom = masters[0]
			}
			intra := com.NewIntraComm(fluidGroup[rank], rank, mc.FluidRanks)
			collect("fluid", rank, runFluid(mc, cc, masterCom, intra))
		}(rank)
	}
	for rank := 0; rank < mc.SolidRanks; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			var masterCom com.Communication
			if rank == com.MasterRank {
				masterCom = masters[1]
			}
			intra := com.NewIntraComm(solidGroup[rank], rank, mc.SolidRanks)
			collect("solid", rank, runSolid(mc, cc, masterCom, intra))
		}(rank)
	}
	wg.Wait()
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// chunk splits n items contiguously among size ranks, returning this rank's
// half open index interval.
func chunk(n, rank, size int) (lo, hi int) {
	lo = rank * n / size
	hi = (rank + 1) * n / size
	return
}

// runFluid provides the interface mesh: it discretizes the unit interface,
// exchanges bounding boxes, ships the mesh, sends the pressure field and
// receives the displacement response.
func runFluid(mc *ModelCoupling, cc *config.CouplingConfig, masterCom com.Communication, intra *com.IntraComm) error {
	meshCfg := cc.Meshes[0]
	m, err := mesh.NewMesh(meshCfg.Name, meshCfg.Dimensions, meshCfg.FlipNormals, 0)
	if err != nil {
		return err
	}

	// Contiguous chunk of the interface line with consecutive global indices.
	lo, hi := chunk(mc.NVertices, intra.Rank(), intra.Size())
	xs := make([]float64, 0, hi-lo)
	var prev *mesh.Vertex
	for i := lo; i < hi; i++ {
		x := float64(i) / float64(mc.NVertices-1)
		v := m.CreateVertex([]float64{x, 0})
		v.SetGlobalIndex(i)
		if prev != nil {
			m.CreateEdge(prev, v)
		}
		prev = v
		xs = append(xs, x)
	}
	if intra.IsMaster() {
		dist := make(map[int][]int, intra.Size())
		for rank := 0; rank < intra.Size(); rank++ {
			rLo, rHi := chunk(mc.NVertices, rank, intra.Size())
			for i := rLo; i < rHi; i++ {
				dist[rank] = append(dist[rank], i)
			}
		}
		m.VertexDistribution = dist
		m.GlobalNumberOfVertices = mc.NVertices
	}

	layer := m2n.NewGatherScatterCommunication(masterCom, 1, intra, m)
	if err := layer.AcceptConnection(cc.Acceptor, cc.Requester); err != nil {
		return err
	}

	part, err := partition.NewReceivedBoundingBox(m, cc.SafetyFactor, cc.Filter(), layer)
	if err != nil {
		return err
	}
	part.ComputeBoundingBox()
	if err := part.CommunicateBoundingBox(); err != nil {
		return err
	}
	if err := layer.BroadcastSendMesh(m); err != nil {
		return err
	}
	if err := layer.BroadcastSendLCM(map[int][]int{intra.Rank(): part.Feedback()}); err != nil {
		return err
	}
	if _, err := layer.BroadcastReceiveLCM(); err != nil {
		return err
	}

	// Pressure sampled on the held vertices, one value per vertex.
	pressure := make([]float64, len(xs))
	for i, x := range xs {
		pressure[i] = math.Sin(2 * math.Pi * x)
	}
	if err := layer.Send(pressure, 1); err != nil {
		return err
	}

	displacement := make([]float64, len(xs))
	if err := layer.Receive(displacement, 1); err != nil {
		return err
	}

	localMax := 0.0
	for _, d := range displacement {
		localMax = math.Max(localMax, math.Abs(d))
	}
	maxParts, err := intra.GatherDoublesV([]float64{localMax})
	if err != nil {
		return err
	}
	if intra.IsMaster() {
		globalMax := 0.0
		for _, rankMax := range maxParts {
			globalMax = math.Max(globalMax, floats.Max(rankMax))
		}
		fmt.Printf("fluid: received displacement on %d interface vertices, max |d| = %8.6f\n",
			mc.NVertices, globalMax)
	}
	return nil
}

// runSolid receives the interface mesh, re-partitions it against the solid
// solver's own domain decomposition and answers the pressure field with a
// displacement field.
func runSolid(mc *ModelCoupling, cc *config.CouplingConfig, masterCom com.Communication, intra *com.IntraComm) error {
	meshCfg := cc.Meshes[1]
	m, err := mesh.NewMesh(meshCfg.Name, meshCfg.Dimensions, meshCfg.FlipNormals, 0)
	if err != nil {
		return err
	}

	layer := m2n.NewGatherScatterCommunication(masterCom, 0, intra, m)
	if err := layer.RequestConnection(cc.Acceptor, cc.Requester); err != nil {
		return err
	}

	part, err := partition.NewReceivedBoundingBox(m, cc.SafetyFactor, cc.Filter(), layer)
	if err != nil {
		return err
	}

	// The solid decomposes the interface in reverse order, so the received
	// partitions never line up with the fluid's and the re-partitioning has
	// real work to do.
	region, err := mesh.NewMesh(meshCfg.Name+"-region", meshCfg.Dimensions, false, 0)
	if err != nil {
		return err
	}
	reversed := intra.Size() - 1 - intra.Rank()
	lo, hi := chunk(mc.NVertices, reversed, intra.Size())
	xLo := float64(lo) / float64(mc.NVertices-1)
	xHi := float64(hi-1) / float64(mc.NVertices-1)
	region.CreateVertex([]float64{xLo, 0})
	region.CreateVertex([]float64{xHi, 0})
	part.AddRegionMesh(region)

	part.ComputeBoundingBox()
	if err := part.CommunicateBoundingBox(); err != nil {
		return err
	}
	if err := part.Communicate(); err != nil {
		return err
	}
	if err := part.Compute(); err != nil {
		return err
	}

	if _, err := layer.BroadcastReceiveLCM(); err != nil {
		return err
	}
	if err := layer.BroadcastSendLCM(map[int][]int{intra.Rank(): part.Feedback()}); err != nil {
		return err
	}

	pressure := make([]float64, len(m.Vertices))
	if err := layer.Receive(pressure, 1); err != nil {
		return err
	}

	// Track the field as coupling data so the previous iteration stays
	// available for convergence checks.
	values := &mat.VecDense{}
	if len(pressure) > 0 {
		values = mat.NewVecDense(len(pressure), pressure)
	}
	cd, err := cplscheme.NewCouplingData(values, m, false, 1)
	if err != nil {
		return err
	}
	if err := cd.AllocateHistory(1); err != nil {
		return err
	}
	if err := cd.StoreIteration(); err != nil {
		return err
	}

	displacement := make([]float64, len(pressure))
	for i, p := range pressure {
		displacement[i] = mc.Compliance * p
	}
	if err := layer.Send(displacement, 1); err != nil {
		return err
	}

	if intra.IsMaster() {
		fmt.Printf("solid: partitioned %d received vertices across %d ranks\n",
			m.GlobalNumberOfVertices, intra.Size())
	}
	return nil
}
