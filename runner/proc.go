package runner

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/gompi/gompi/env"
	"github.com/gompi/gompi/plan"
)

type Envs map[string]string

func (e Envs) AddIfMissing(k, v string) {
	if _, ok := e[k]; !ok {
		e[k] = v
	}
}

func Merge(e, f Envs) Envs {
	g := make(Envs)
	for k, v := range e {
		g[k] = v
	}
	for k, v := range f {
		g[k] = v
	}
	return g
}

// Proc describes one worker process of a job.
type Proc struct {
	Name     string
	Prog     string
	Args     []string
	Envs     Envs
	Hostname uint32
	PubAddr  string
}

func (p Proc) Cmd() *exec.Cmd {
	cmd := exec.Command(p.Prog, p.Args...)
	cmd.Env = updatedEnv(p.Envs)
	return cmd
}

// Script renders the process as a shell command for remote execution.
func (p Proc) Script() string {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "env \\\n")
	for k, v := range p.Envs {
		fmt.Fprintf(buf, "\t%s=%q \\\n", k, v)
	}
	fmt.Fprintf(buf, "\t%s \\\n", p.Prog)
	for _, a := range p.Args {
		fmt.Fprintf(buf, "\t%s \\\n", a)
	}
	fmt.Fprintf(buf, "\n")
	return buf.String()
}

func updatedEnv(newValues Envs) []string {
	envMap := make(Envs)
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}
	for k, v := range newValues {
		envMap[k] = v
	}
	var envs []string
	for k, v := range envMap {
		envs = append(envs, k+"="+v)
	}
	return envs
}

// Job is a parsed launch request: a program to run once per peer.
type Job struct {
	Prog         string
	Args         []string
	Parent       plan.PeerID
	PeerList     plan.PeerList
	HostList     plan.HostList
	JobStartTime int64
	LogDir       string
}

// GenProcs renders one worker Proc per peer, wiring the configuration
// environment each worker's runtime reads at startup.
func (j Job) GenProcs() []Proc {
	var ps []Proc
	for rank, peer := range j.PeerList {
		name := fmt.Sprintf("%s/%d", plan.FormatIPv4(peer.IPv4), rank)
		envs := Envs{
			env.SelfSpecEnvKey: peer.String(),
			env.PeerListEnvKey: j.PeerList.String(),
			env.ParentEnvKey:   j.Parent.String(),
			env.JobStartEnvKey: strconv.FormatInt(j.JobStartTime, 10),
		}
		pubAddr := plan.FormatIPv4(peer.IPv4)
		if h, ok := j.HostList.LookupHost(peer.IPv4); ok {
			pubAddr = h.PublicAddr
		}
		ps = append(ps, Proc{
			Name:     name,
			Prog:     j.Prog,
			Args:     j.Args,
			Envs:     envs,
			Hostname: peer.IPv4,
			PubAddr:  pubAddr,
		})
	}
	return ps
}

// ForHost keeps the procs scheduled on the given host.
func ForHost(myHost uint32, ps []Proc) []Proc {
	var qs []Proc
	for _, p := range ps {
		if p.Hostname == myHost {
			qs = append(qs, p)
		}
	}
	return qs
}
