package driver

import (
	"context"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/containerd/fifo"
	"github.com/docker/docker/api/types/plugins/logdriver"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// processor owns one FIFO: it decodes the engine's frame stream, normalizes
// each entry and ships it to the ingest API. Each ingest completes before
// the next read, so records arrive at the collector in write order.
type processor struct {
	cfg    Config
	client Ingester

	errMu          sync.Mutex
	lastErrLog     time.Time
	suppressedErrs int
}

func newProcessor(cfg Config, newIngester IngesterFunc) *processor {
	return &processor{
		cfg:    cfg,
		client: newIngester(cfg.IngestURL),
	}
}

// Run consumes fifoPath until the engine closes the pipe, the stream fails,
// or ctx is cancelled by a stop request. Cancellation is a normal exit, even
// when it interrupts a blocked read or an in-flight ingest.
func (p *processor) Run(ctx context.Context, fifoPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	f, err := fifo.OpenFifo(ctx, fifoPath, syscall.O_RDONLY, 0)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrapf(err, "opening fifo %q", fifoPath)
	}
	defer f.Close()

	// Close the FIFO when the stop signal arrives so a blocked read unwinds.
	go func() {
		<-ctx.Done()
		f.Close()
	}()

	err = p.consume(ctx, f)
	if ctx.Err() != nil {
		logrus.WithField("file", fifoPath).Info("received stop signal")
		return nil
	}
	return err
}

// consume drives the read, normalize, ingest loop over one frame stream.
// Reader and normalizer errors are terminal; ingest errors are logged and
// the stream continues with the next frame.
func (p *processor) consume(ctx context.Context, r io.Reader) error {
	lr := newLogReader(r)

	var entry logdriver.LogEntry
	for {
		ok, err := lr.Next(&entry)
		if err != nil {
			return errors.Wrap(err, "reading log entry")
		}
		if !ok {
			return nil
		}

		msg, err := newLogMessage(&entry)
		if err != nil {
			return errors.Wrap(err, "normalizing log entry")
		}

		if err := p.client.Ingest(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logIngestError(err)
		}
	}
}

// logIngestError rate-limits ingest failure logging to prevent log floods.
// At most one error is logged per minute; suppressed errors are counted and
// reported with the next logged one.
func (p *processor) logIngestError(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()

	now := time.Now()
	if now.Sub(p.lastErrLog) < time.Minute {
		p.suppressedErrs++
		return
	}

	entry := logrus.WithError(err)
	if p.suppressedErrs > 0 {
		entry = entry.WithField("suppressed", p.suppressedErrs)
		p.suppressedErrs = 0
	}
	entry.Error("error ingesting log message")
	p.lastErrLog = now
}
