package runner

import (
	"errors"
	"flag"
	"os"
	"time"

	"github.com/gompi/gompi/plan"
	"github.com/gompi/gompi/utils"
)

type FlagSet struct {
	ClusterSize int
	hostList    string
	HostList    plan.HostList

	User string

	PortRange plan.PortRange

	Self       string
	Timeout    time.Duration
	VerboseLog bool

	LogDir string
	Quiet  bool

	Prog string
	Args []string
}

func (f *FlagSet) Register(flag *flag.FlagSet) {
	flag.IntVar(&f.ClusterSize, "np", 1, "number of peers")
	flag.StringVar(&f.hostList, "H", plan.DefaultHostList.String(), "comma separated list of <internal IP>:<nslots>[:<public addr>]")

	flag.StringVar(&f.User, "u", "", "user name for ssh")

	f.PortRange = plan.DefaultPortRange
	flag.Var(&f.PortRange, "port-range", "port range for the peers")

	flag.StringVar(&f.Self, "self", "127.0.0.1", "internal IPv4 of this host")
	flag.DurationVar(&f.Timeout, "timeout", 0, "timeout")
	flag.BoolVar(&f.VerboseLog, "v", true, "show task log")
	flag.StringVar(&f.LogDir, "logdir", ".", "directory to save task logs")
	flag.BoolVar(&f.Quiet, "q", false, "don't log launcher args and environment")
}

var errMissingProgramName = errors.New("missing program name")

func (f *FlagSet) Parse(args []string) error {
	flags := flag.NewFlagSet(args[0], flag.ExitOnError)
	f.Register(flags)
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}
	rest := flags.Args()
	if len(rest) < 1 {
		return errMissingProgramName
	}
	f.Prog = rest[0]
	f.Args = rest[1:]
	var err error
	if f.HostList, err = plan.ParseHostList(f.hostList); err != nil {
		return err
	}
	return nil
}

func Init(f *FlagSet) {
	if err := f.Parse(os.Args); err != nil {
		utils.ExitErr(err)
	}
	if !f.Quiet {
		utils.LogArgs()
		utils.LogEnvWithPrefix(`GOMPI_`, `env`)
	}
}
