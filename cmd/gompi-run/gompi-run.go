package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gompi/gompi/log"
	"github.com/gompi/gompi/plan"
	"github.com/gompi/gompi/runner"
	"github.com/gompi/gompi/utils"
)

var f runner.FlagSet

func init() { runner.Init(&f) }

func main() {
	t0 := time.Now()
	defer func(prog string) { log.Infof("%s took %s", prog, time.Since(t0)) }(utils.ProgName())

	if n := f.HostList.Cap(); n < f.ClusterSize {
		utils.ExitErr(fmt.Errorf("-np=%d exceeds host list capacity %d", f.ClusterSize, n))
	}
	peers, err := f.HostList.GenPeerList(f.ClusterSize, f.PortRange)
	if err != nil {
		utils.ExitErr(err)
	}
	parent := plan.PeerID{IPv4: plan.MustParseIPv4(f.Self), Port: 0}

	j := runner.Job{
		Prog:         f.Prog,
		Args:         f.Args,
		Parent:       parent,
		PeerList:     peers,
		HostList:     f.HostList,
		JobStartTime: t0.Unix(),
		LogDir:       f.LogDir,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if f.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	procs := j.GenProcs()
	local, remote := split(procs, parent.IPv4)
	log.Infof("launching %s with %s on %s, %s local, %s remote",
		f.Prog,
		utils.Pluralize(len(procs), "peer", "peers"),
		utils.Pluralize(len(f.HostList), "host", "hosts"),
		utils.Pluralize(len(local), "proc", "procs"),
		utils.Pluralize(len(remote), "proc", "procs"))

	done := make(chan error, 2)
	ngroup := 0
	if len(local) > 0 {
		ngroup++
		go func() { done <- runner.LocalRunAll(ctx, local, f.VerboseLog, f.LogDir) }()
	}
	if len(remote) > 0 {
		ngroup++
		go func() { done <- runner.RemoteRunAll(ctx, f.User, remote, f.VerboseLog, f.LogDir) }()
	}
	for i := 0; i < ngroup; i++ {
		if err := <-done; err != nil {
			utils.ExitErr(err)
		}
	}
}

func split(ps []runner.Proc, self uint32) (local, remote []runner.Proc) {
	for _, p := range ps {
		if p.Hostname == self {
			local = append(local, p)
		} else {
			remote = append(remote, p)
		}
	}
	return
}
