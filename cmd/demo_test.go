package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunDemo(t *testing.T) {
	mc := &ModelCoupling{FluidRanks: 2, SolidRanks: 3, NVertices: 12, Compliance: 0.01}
	cc := processCouplingInput(mc)
	require.NoError(t, RunDemo(mc, cc))
}

func TestRunDemoSerialParticipants(t *testing.T) {
	mc := &ModelCoupling{FluidRanks: 1, SolidRanks: 1, NVertices: 4, Compliance: 0.5}
	cc := processCouplingInput(mc)
	require.NoError(t, RunDemo(mc, cc))
}
