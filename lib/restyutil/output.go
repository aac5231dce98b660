// Package restyutil records raw http exchanges of a resty client, it is how a
// run that got unexpected pages can be inspected afterwards.
package restyutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

type Output interface {
	Write(id string, contents string) error
}

// DirOutput writes every exchange to its own file in a directory.
type DirOutput struct {
	directory string
}

// NewDirOutput empties `dir` (creating it if needed), a dump only ever holds a
// single run.
func NewDirOutput(dir string) (DirOutput, error) {
	err := os.RemoveAll(dir)
	if err != nil {
		return DirOutput{}, err
	}
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return DirOutput{}, err
	}
	return DirOutput{directory: dir}, nil
}

func (o DirOutput) Write(id string, contents string) error {
	return os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
}

// Record writes every response the client receives to `output`, ids are a
// sequence number and the status code (ex. 0003-200.txt). Ids keep counting
// across clients sharing the same `counter`.
func Record(client *resty.Client, output Output, counter *atomic.Uint64) {
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := fmt.Sprintf("%04d-%d.txt", counter.Add(1), res.StatusCode())
		err := output.Write(id, FormatExchange(res))
		if err != nil {
			slog.Warn("failed to record http exchange", "id", id, "err", err)
		}
		return nil
	})
}
