package file

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// CreateOutFile creates (or truncates) name inside dir, creating dir first.
func CreateOutFile(dir string, name string) (*os.File, error) {
	if err := EnsureOutPath(dir); err != nil {
		return nil, err
	}
	outputFile, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, eris.Wrapf(err, "creating %v", name)
	}
	return outputFile, nil
}

// RunDir is the output directory of one run of an experiment.
func RunDir(outPath string, experiment string, runKey string) string {
	return filepath.Join(outPath, experiment, runKey)
}

func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

func EnsureOutPath(outPath string) error {
	if err := os.MkdirAll(outPath, os.ModePerm); err != nil {
		return eris.Wrapf(err, "creating %v", outPath)
	}
	return nil
}
