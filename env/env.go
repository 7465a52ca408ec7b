// Package env defines the environment variables a launcher uses to
// configure worker processes.
package env

import (
	"fmt"
	"os"

	"github.com/gompi/gompi/plan"
)

const (
	SelfSpecEnvKey  = `GOMPI_SELF_SPEC`
	PeerListEnvKey  = `GOMPI_INIT_PEERS`
	ParentEnvKey    = `GOMPI_PARENT`
	JobStartEnvKey  = `GOMPI_JOB_START_TIMESTAMP`
	LogLevelEnvKey  = `GOMPI_LOG_LEVEL`
	allEnvKeyPrefix = `GOMPI_`
)

// Config describes one worker's place in a job.
type Config struct {
	Self   plan.PeerID
	Parent plan.PeerID
	Peers  plan.PeerList
	Single bool
}

// ParseConfigFromEnv reads the worker configuration written by the
// launcher. A process started without a launcher gets a single-process
// config on an ephemeral port.
func ParseConfigFromEnv() (*Config, error) {
	if _, ok := os.LookupEnv(SelfSpecEnvKey); !ok {
		return singleProcessEnv(), nil
	}
	self, err := getPeerIDFromEnv(SelfSpecEnvKey)
	if err != nil {
		return nil, err
	}
	parent, err := getPeerIDFromEnv(ParentEnvKey)
	if err != nil {
		return nil, err
	}
	peers, err := plan.ParsePeerList(os.Getenv(PeerListEnvKey))
	if err != nil {
		return nil, err
	}
	return &Config{
		Self:   *self,
		Parent: *parent,
		Peers:  peers,
	}, nil
}

func singleProcessEnv() *Config {
	return &Config{
		Self:   plan.PeerID{IPv4: plan.MustParseIPv4(`127.0.0.1`), Port: 0},
		Single: true,
	}
}

func getPeerIDFromEnv(key string) (*plan.PeerID, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return nil, fmt.Errorf("%s not set", key)
	}
	return plan.ParsePeerID(val)
}

// AllKeys lists the variables a launcher should forward to workers.
func AllKeys() []string {
	return []string{
		SelfSpecEnvKey,
		PeerListEnvKey,
		ParentEnvKey,
		JobStartEnvKey,
		LogLevelEnvKey,
	}
}
