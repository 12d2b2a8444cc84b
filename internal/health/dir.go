package health

import (
	"context"
	"os"

	"github.com/keithlinneman/playdrop/internal/xerrors"
)

// WritableDir fails unless dir exists and a file can be created in it.
// The probe file is removed again before returning.
func WritableDir(dir string) CheckFunc {
	return func(context.Context) error {
		info, err := os.Stat(dir)
		if err != nil {
			return xerrors.Wrapf(err, "upload root %s", dir)
		}
		if !info.IsDir() {
			return xerrors.Newf("upload root %s is not a directory", dir)
		}
		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			return xerrors.Wrapf(err, "upload root %s not writable", dir)
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	}
}
