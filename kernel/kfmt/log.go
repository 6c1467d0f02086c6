package kfmt

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Log is the structured logger used by the boot and memory-management code
// for events that are not part of the console transcript.
var Log = logrus.New()

// ConfigureLog sets the output, level and format of Log. Unknown levels
// return an error and leave the logger untouched.
func ConfigureLog(w io.Writer, level string, json bool) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}

	Log.SetOutput(w)
	Log.SetLevel(lvl)
	if json {
		Log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}

	return nil
}
