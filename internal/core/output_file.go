package core

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	outputBufferSize = 64 * 1024
)

// outputPath returns the path of the file with the given number.
// Files are numbered only when splitting is enabled.
func outputPath(base string, split bool, fileNum int) string {
	if !split {
		return base
	}

	ext := filepath.Ext(base)
	return fmt.Sprintf("%s-%03d%s", strings.TrimSuffix(base, ext), fileNum, ext)
}

type outputFile struct {
	f  *os.File
	bw *bufio.Writer
}

func createOutputFile(fpath string) (*outputFile, error) {
	f, err := os.Create(fpath)
	if err != nil {
		return nil, err
	}

	return &outputFile{
		f:  f,
		bw: bufio.NewWriterSize(f, outputBufferSize),
	}, nil
}

func (o *outputFile) Write(p []byte) (int, error) {
	return o.bw.Write(p)
}

func (o *outputFile) Close() error {
	err := o.bw.Flush()
	if err != nil {
		o.f.Close()
		return err
	}
	return o.f.Close()
}
