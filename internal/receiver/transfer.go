package receiver

import (
	"os"
	"time"
)

// transfer is the write state of one origin's file.
type transfer struct {
	owner    string // origin address, ip:port
	path     string // absolute output path
	file     *os.File
	expected uint32 // next DATA seq that may be written
	lastSeen time.Time
}

func (t *transfer) close() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

// TransferInfo is a read-only snapshot of one transfer.
type TransferInfo struct {
	Origin   string
	Path     string
	Expected uint32
}
