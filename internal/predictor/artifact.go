package predictor

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/PattanaikL/learn134k/internal/model"
)

// artifactExtensions are the sibling files making up one persisted model:
// structure, weights, and normalization statistics.
var artifactExtensions = []string{".json", ".h5", ".attr"}

// SaveModel persists the model and the normalization statistics at
// modelPath. Any pre-existing artifact file is first renamed to a _backup
// sibling, replacing a prior backup, so at most one previous generation is
// retained. The backup step and the write are separate filesystem
// operations; a crash between them never loses the backed-up generation,
// but a crash mid-write can leave the new file partial.
func (p *Predictor) SaveModel(modelPath string, metrics model.Metrics) error {
	if p.model == nil {
		return ErrNoModel
	}
	log.Info().Str("path", modelPath).Msg("saving model")

	for _, ext := range artifactExtensions {
		src := modelPath + ext
		if _, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("stat %s: %w", src, err)
		}
		dst := modelPath + "_backup" + ext
		log.Info().Str("from", src).Str("to", dst).Msg("backing up previous artifact")
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("back up %s: %w", src, err)
		}
	}

	if err := p.model.Save(modelPath, metrics); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	if err := p.saveMeanAndStd(modelPath + ".attr"); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.ModelSavesInc()
	}
	return nil
}

func (p *Predictor) saveMeanAndStd(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create mean and std file: %w", err)
	}
	defer f.Close()

	ms := meanAndStd{Mean: p.yMean, Std: p.yStd}
	if err := gob.NewEncoder(f).Encode(ms); err != nil {
		return fmt.Errorf("encode mean and std: %w", err)
	}
	return nil
}
