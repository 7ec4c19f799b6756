package test

import (
	"os"
)

// CreateTempFile writes byts into a new file of the system temporary
// directory and returns its path. Callers remove it.
func CreateTempFile(byts []byte) (string, error) {
	f, err := os.CreateTemp("", "mkvmux-*.yml")
	if err != nil {
		return "", err
	}

	_, err = f.Write(byts)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}

	return f.Name(), f.Close()
}
