package screenrec

import (
	"io"

	"github.com/sirupsen/logrus"
)

// discardLogger returns an entry that drops everything.
func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
