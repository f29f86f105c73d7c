// Package worker generates the tours requested through the job broker.
package worker

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/border-inspection/tourgen/boundary"
	"github.com/border-inspection/tourgen/broker"
	"github.com/border-inspection/tourgen/elevation"
	"github.com/border-inspection/tourgen/esp"
	"github.com/border-inspection/tourgen/metrics"
	"github.com/border-inspection/tourgen/s3"
	"github.com/border-inspection/tourgen/tour"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Config holds the settings of the worker that are not part of the tour.
type Config struct {
	Tour   tour.Config
	Video  esp.VideoConfig
	Output esp.OutputConfig

	// OutputURI is the s3:// prefix the written files are uploaded to. Empty
	// disables uploads.
	OutputURI string
}

// Worker is the core of the worker.
//
// It subscribes to the broker, loads the boundary named by every job,
// generates its tour and writes the project files into a directory named
// after the job.
type Worker struct {
	logger   logrus.FieldLogger
	broker   *broker.Broker
	loader   *boundary.Loader
	provider elevation.Provider
	fs       afero.Fs
	storage  s3.ObjectStorage
	config   Config

	mu      sync.Mutex
	current string
	handled int

	stop chan chan struct{}
}

func New(
	logger logrus.FieldLogger,
	broker *broker.Broker,
	loader *boundary.Loader,
	provider elevation.Provider,
	fs afero.Fs,
	storage s3.ObjectStorage,
	config Config) *Worker {

	w := &Worker{
		logger:   logger,
		broker:   broker,
		loader:   loader,
		provider: provider,
		fs:       fs,
		storage:  storage,
		config:   config,
		stop:     make(chan chan struct{}),
	}

	if broker != nil {
		broker.Subscribe(w.handleJob)
	}

	return w
}

func (w *Worker) Run() {
	go w.broker.Run()
	w.loop()
}

func (w *Worker) loop() {
	ch := <-w.stop
	w.broker.Stop()
	close(ch)
}

func (w *Worker) Stop() {
	ch := make(chan struct{})
	w.stop <- ch
	<-ch
}

// Log reports the job in progress and the number of jobs handled.
func (w *Worker) Log() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logger.WithFields(logrus.Fields{"current": w.current, "handled": w.handled}).Info("Worker status")
}

// handleJob generates the tour of a single job.
func (w *Worker) handleJob(ctx context.Context, job *broker.Job) (*broker.Result, error) {
	w.mu.Lock()
	w.current = job.ID
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.current = ""
		w.handled++
		w.mu.Unlock()
	}()

	res, err := w.generate(ctx, job)
	w.flush()
	switch {
	case err == nil:
		metrics.FilesProcessed.Inc()
		metrics.JobsHandled.WithLabelValues("done").Inc()
	case errors.Cause(err) == context.Canceled:
		metrics.JobsHandled.WithLabelValues("interrupted").Inc()
	default:
		metrics.FilesFailed.Inc()
		metrics.JobsHandled.WithLabelValues("failed").Inc()
	}
	return res, err
}

// flush persists the elevations queried so far, so a crash of the long
// running worker does not lose them.
func (w *Worker) flush() {
	f, ok := w.provider.(elevation.Flusher)
	if !ok {
		return
	}
	if err := f.Flush(); err != nil {
		w.logger.WithError(err).Warn("Elevation cache could not be flushed")
	}
}

func (w *Worker) generate(ctx context.Context, job *broker.Job) (*broker.Result, error) {
	logger := w.logger.WithFields(logrus.Fields{"job": job.ID, "source": job.Source})

	overrides, err := job.Overrides()
	if err != nil {
		return nil, err
	}
	cfg := w.config.Tour.Apply(overrides)
	g, err := tour.NewGenerator(logger, cfg, w.provider)
	if err != nil {
		return nil, err
	}

	b, err := w.loader.LoadLongestRing(ctx, job.Source)
	if err != nil {
		return nil, err
	}
	t, err := g.Generate(ctx, b)
	if err != nil {
		return nil, err
	}
	res := &broker.Result{
		Name:       t.Name,
		DistanceKm: t.Distance(),
		Frames:     t.Frames,
		Parts:      len(t.Parts),
		Warnings:   t.Warnings,
	}

	output := w.config.Output
	output.Dir = filepath.Join(output.Dir, job.ID)
	files, err := esp.NewWriter(logger, w.fs, output, w.config.Video).Write(t, cfg)
	if err != nil {
		return res, err
	}
	res.Files = files

	if w.storage == nil || w.config.OutputURI == "" {
		return res, nil
	}
	uploaded := make([]string, 0, len(files))
	for _, path := range files {
		loc, err := w.upload(ctx, path, s3.Join(w.config.OutputURI, job.ID, filepath.Base(path)))
		if err != nil {
			return res, err
		}
		uploaded = append(uploaded, loc)
	}
	logger.WithField("files", len(uploaded)).Info("Uploaded tour")
	res.Files = uploaded
	return res, nil
}

func (w *Worker) upload(ctx context.Context, path, uri string) (string, error) {
	f, err := w.fs.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "cannot open %s", path)
	}
	defer f.Close()
	loc, err := w.storage.Upload(ctx, f, uri)
	if err != nil {
		return "", err
	}
	if loc == "" {
		loc = uri
	}
	return loc, nil
}
