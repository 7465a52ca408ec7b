package runner

import (
	"strings"
	"testing"

	"github.com/gompi/gompi/env"
	"github.com/gompi/gompi/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenProcs(t *testing.T) {
	hl, err := plan.ParseHostList(`127.0.0.1:2`)
	require.NoError(t, err)
	pl, err := hl.GenPeerList(2, plan.DefaultPortRange)
	require.NoError(t, err)

	j := Job{
		Prog:         `worker`,
		Args:         []string{`-x`},
		Parent:       plan.PeerID{IPv4: plan.MustParseIPv4(`127.0.0.1`), Port: 0},
		PeerList:     pl,
		HostList:     hl,
		JobStartTime: 1,
	}
	ps := j.GenProcs()
	require.Equal(t, 2, len(ps))
	for rank, p := range ps {
		assert.Equal(t, pl[rank].String(), p.Envs[env.SelfSpecEnvKey])
		assert.Equal(t, pl.String(), p.Envs[env.PeerListEnvKey])
		assert.Equal(t, j.Parent.String(), p.Envs[env.ParentEnvKey])
		assert.Equal(t, pl[rank].IPv4, p.Hostname)
	}
	assert.Equal(t, 2, len(ForHost(plan.MustParseIPv4(`127.0.0.1`), ps)))
	assert.Equal(t, 0, len(ForHost(plan.MustParseIPv4(`10.0.0.1`), ps)))
}

func TestUpdatedEnv(t *testing.T) {
	t.Setenv(`GOMPI_TEST_KEY`, `old`)
	envs := updatedEnv(Envs{`GOMPI_TEST_KEY`: `new`})
	var found bool
	for _, kv := range envs {
		if strings.HasPrefix(kv, `GOMPI_TEST_KEY=`) {
			assert.Equal(t, `GOMPI_TEST_KEY=new`, kv)
			found = true
		}
	}
	assert.True(t, found)
}

func TestEnvsMerge(t *testing.T) {
	e := Envs{`A`: `1`}
	f := Envs{`A`: `2`, `B`: `3`}
	g := Merge(e, f)
	assert.Equal(t, `2`, g[`A`])
	assert.Equal(t, `3`, g[`B`])
	e.AddIfMissing(`A`, `9`)
	e.AddIfMissing(`C`, `4`)
	assert.Equal(t, `1`, e[`A`])
	assert.Equal(t, `4`, e[`C`])
}
