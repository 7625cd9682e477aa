package utils

import "github.com/spf13/afero"

// Filesystem abstraction used for job descriptions and status dumps.
// Tests use afero.NewMemMapFs.
type Fs = afero.Fs
