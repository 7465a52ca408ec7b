package iostream

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// Tee copies r line by line to all of ws.
func Tee(r io.Reader, ws ...io.Writer) error {
	reader := bufio.NewReader(r)
	for {
		line, _, err := reader.ReadLine()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		for _, w := range ws {
			fmt.Fprintln(w, string(line))
		}
	}
}

type StdReaders struct {
	Stdout io.Reader
	Stderr io.Reader
}

type StdWriters struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Stream redirects both standard streams to all given writers,
// returning a handle to wait for the copies to finish.
func (r StdReaders) Stream(ws ...*StdWriters) interface{ Wait() } {
	var outs, errs []io.Writer
	for _, w := range ws {
		outs = append(outs, w.Stdout)
		errs = append(errs, w.Stderr)
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { Tee(r.Stdout, outs...); wg.Done() }()
	go func() { Tee(r.Stderr, errs...); wg.Done() }()
	return &wg
}
