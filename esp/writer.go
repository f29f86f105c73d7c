package esp

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/border-inspection/tourgen/tour"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// OutputConfig selects what is written for a tour.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`

	// ESP enables project files, Scripts the encoding scripts. Movie reels
	// always get their project file and montage script.
	ESP     bool `mapstructure:"esp"`
	Scripts bool `mapstructure:"sh"`
}

// Writer writes the projects and scripts of generated tours.
type Writer struct {
	fs     afero.Fs
	output OutputConfig
	video  VideoConfig
	logger logrus.FieldLogger
}

func NewWriter(logger logrus.FieldLogger, fs afero.Fs, output OutputConfig, video VideoConfig) *Writer {
	return &Writer{
		fs:     fs,
		output: output,
		video:  video,
		logger: logger,
	}
}

// Write writes every part of the tour and returns the paths of the written
// files.
func (w *Writer) Write(t *tour.Tour, cfg tour.Config) ([]string, error) {
	if err := w.fs.MkdirAll(w.output.Dir, os.FileMode(0755)); err != nil {
		return nil, errors.Wrapf(err, "cannot create output directory %s", w.output.Dir)
	}

	reel := t.Reel > 0
	metas := NewMetadata(t, cfg, w.video)
	var written []string
	write := func(name string, mode os.FileMode, render func(io.Writer) error) error {
		path := filepath.Join(w.output.Dir, name)
		buf := new(bytes.Buffer)
		if err := render(buf); err != nil {
			return err
		}
		if err := afero.WriteFile(w.fs, path, buf.Bytes(), mode); err != nil {
			return errors.Wrapf(err, "cannot write %s", path)
		}
		w.logger.WithField("path", path).Debug("Wrote file")
		written = append(written, path)
		return nil
	}

	for i, meta := range metas {
		part := t.Parts[i]
		w.logger.WithFields(logrus.Fields{
			"part":      meta.FileName(),
			"keyframes": []int{part.StartIndex, part.EndIndex},
			"frames":    []int{part.StartFrame, part.EndFrame},
		}).Info("Writing part")

		if w.output.ESP || reel {
			doc := Project(meta, part, part.Keyframes(t.Keyframes))
			err := write(meta.FileName()+".esp", 0644, func(out io.Writer) error {
				return errors.Wrap(json.NewEncoder(out).Encode(doc), "cannot encode project")
			})
			if err != nil {
				return written, err
			}
		}
		if w.output.Scripts && !reel {
			first := i == 0
			err := write(meta.FileName()+".sh", 0744, func(out io.Writer) error {
				return WritePartScript(out, meta, w.video, first)
			})
			if err != nil {
				return written, err
			}
		}
	}

	if len(metas) == 0 {
		return written, nil
	}
	switch {
	case reel:
		err := write(t.Name+"reel.sh", 0744, func(out io.Writer) error {
			return WriteReelScript(out, metas[0])
		})
		if err != nil {
			return written, err
		}
	case w.output.Scripts:
		err := write(t.Name+".sh", 0744, func(out io.Writer) error {
			return WriteConcatScript(out, metas[0])
		})
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
