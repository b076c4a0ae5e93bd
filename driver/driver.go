package driver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// errNoTaskFound is the soft error returned when StopLogging names a path
// with no registered task. The engine surfaces it without failing the stop.
const errNoTaskFound = "No task found for container logging to file"

// Driver implements the Docker log driver plugin protocol, routing each
// container's frame stream to the ingest API.
type Driver struct {
	cfg         Config
	registry    *taskRegistry
	newIngester IngesterFunc
}

// New creates a Driver that ships records with the real HTTP ingest client.
func New(cfg Config) *Driver {
	return NewWithIngesterFunc(cfg, func(ingestURL string) Ingester {
		return NewIngestClient(ingestURL)
	})
}

// NewWithIngesterFunc creates a Driver with a custom ingester constructor
// (for testing).
func NewWithIngesterFunc(cfg Config, newIngester IngesterFunc) *Driver {
	return &Driver{
		cfg:         cfg,
		registry:    newTaskRegistry(),
		newIngester: newIngester,
	}
}

// Router is the route table the log driver endpoints are mounted on. Both
// sdk.Handler and *http.ServeMux satisfy it.
type Router interface {
	HandleFunc(path string, fn func(http.ResponseWriter, *http.Request))
}

// RegisterHandlers wires up the log driver endpoints on the plugin handler.
// The plugin handshake itself is served by the SDK handler's manifest.
func (d *Driver) RegisterHandlers(h Router) {
	h.HandleFunc("/LogDriver.StartLogging", d.handleStartLogging)
	h.HandleFunc("/LogDriver.StopLogging", d.handleStopLogging)
}

// --- Request/Response types ---

// StartLoggingRequest is sent by the engine when a container starts.
type StartLoggingRequest struct {
	File string           `json:"File"`
	Info StartLoggingInfo `json:"Info"`
}

// StartLoggingInfo carries the engine's container metadata. The fields are
// informational; the FIFO path is the identity key everywhere.
type StartLoggingInfo struct {
	ContainerID   string `json:"ContainerID"`
	ContainerName string `json:"ContainerName"`
}

// StopLoggingRequest is sent by the engine when a container stops.
type StopLoggingRequest struct {
	File string `json:"File"`
}

type errResponse struct {
	Err string `json:"Err"`
}

// --- Handlers ---

func (d *Driver) handleStartLogging(w http.ResponseWriter, r *http.Request) {
	var req StartLoggingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w)
		return
	}
	if req.File == "" || req.Info.ContainerID == "" {
		respondBadRequest(w)
		return
	}

	fields := logrus.Fields{
		"file":         req.File,
		"container_id": req.Info.ContainerID,
	}
	if req.Info.ContainerName != "" {
		fields["container_name"] = req.Info.ContainerName
	}
	logrus.WithFields(fields).Info("starting log task")

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		fifoPath: req.File,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	if prev := d.registry.register(t); prev != nil {
		logrus.WithField("file", req.File).Info("replacing existing log task")
		prev.cancel()
	}

	p := newProcessor(d.cfg, d.newIngester)
	go func() {
		defer close(t.done)
		if err := p.Run(ctx, req.File); err != nil {
			logrus.WithError(err).WithField("file", req.File).Error("processing log stream failed")
		}
	}()

	respondOK(w)
}

func (d *Driver) handleStopLogging(w http.ResponseWriter, r *http.Request) {
	var req StopLoggingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w)
		return
	}
	if req.File == "" {
		respondBadRequest(w)
		return
	}

	t := d.registry.take(req.File)
	if t == nil {
		logrus.WithField("file", req.File).Warn("no log task found; ignoring stop request")
		respondSoftErr(w, errNoTaskFound)
		return
	}

	logrus.WithField("file", req.File).Info("sending stop signal")
	if !t.stop() {
		logrus.WithField("file", req.File).Warn("log task had already finished")
	}
	respondOK(w)
}

// --- HTTP helpers ---

func respondOK(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(errResponse{})
}

// respondSoftErr reports a non-empty Err with HTTP 200; the engine treats it
// as a soft failure.
func respondSoftErr(w http.ResponseWriter, msg string) {
	json.NewEncoder(w).Encode(errResponse{Err: msg})
}

func respondBadRequest(w http.ResponseWriter) {
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(errResponse{Err: "Bad Request"})
}
