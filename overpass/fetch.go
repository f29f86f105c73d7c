package overpass

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Fetcher writes the boundaries of countries into <dir>/<admin
// level>/<code>.geojson.
type Fetcher struct {
	client     *Client
	fs         afero.Fs
	dir        string
	adminLevel int
	logger     logrus.FieldLogger
}

func NewFetcher(logger logrus.FieldLogger, client *Client, fs afero.Fs, dir string, adminLevel int) *Fetcher {
	return &Fetcher{
		client:     client,
		fs:         fs,
		dir:        dir,
		adminLevel: adminLevel,
		logger:     logger,
	}
}

// Fetch downloads the given countries, or every country known to Overpass
// when codes is empty. Countries already on disk are skipped. It returns the
// written paths; failures of single countries are logged and reported
// together at the end.
func (f *Fetcher) Fetch(ctx context.Context, codes []string) ([]string, error) {
	if len(codes) == 0 {
		var err error
		codes, err = f.client.CountryCodes(ctx, f.adminLevel)
		if err != nil {
			return nil, errors.Wrap(err, "cannot list country codes")
		}
		f.logger.WithField("countries", len(codes)).Info("Checking for country borders")
	}

	var written []string
	failed := 0
	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		logger := f.logger.WithField("country", code)
		name := code + ".geojson"
		exists, err := afero.Exists(f.fs, filepath.Join(f.dir, strconv.Itoa(f.adminLevel), name))
		if err != nil {
			return written, err
		}
		if exists {
			logger.Debug("Border exists, skipping")
			continue
		}

		fc, err := f.client.Boundary(ctx, code, f.adminLevel)
		if errors.Cause(err) == NotFoundErr {
			logger.Warn("Empty result")
			continue
		}
		if err != nil {
			if errors.Cause(err) == context.Canceled {
				return written, err
			}
			logger.WithError(err).Error("Cannot fetch border")
			failed++
			continue
		}

		level := AdminLevel(fc)
		if level == "" {
			level = strconv.Itoa(f.adminLevel)
		}
		path := filepath.Join(f.dir, level, name)
		blob, err := fc.MarshalJSON()
		if err != nil {
			return written, errors.Wrapf(err, "cannot encode %s", code)
		}
		if err := f.fs.MkdirAll(filepath.Dir(path), os.FileMode(0755)); err != nil {
			return written, err
		}
		if err := afero.WriteFile(f.fs, path, blob, 0644); err != nil {
			return written, errors.Wrapf(err, "cannot write %s", path)
		}
		logger.WithField("path", path).Info("Wrote border")
		written = append(written, path)
	}
	if failed > 0 {
		return written, errors.Errorf("%d of %d borders could not be fetched", failed, len(codes))
	}
	return written, nil
}
