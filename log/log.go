// Package log carries the tagged logrus setup shared by the bridge service
// and its CLI. Entries are scoped twice: a tag per subsystem and, for
// everything the pumps and watchers emit, the id of the owning connection.
package log

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func init() {
	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.AddHook(new(BridgeHook))
}

func NewLogger(tag string) *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger()).WithField("tag", tag)
}

// Connection derives a per-connection logger so pump and watcher messages
// carry the connection id without spelling it out at every call site.
func Connection(logger *logrus.Entry, id uuid.UUID) *logrus.Entry {
	return logger.WithField("connection", id)
}

// BridgeHook renders the tag and connection fields into the message text,
// keeping the default text formatter scannable.
type BridgeHook struct{}

func (h *BridgeHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *BridgeHook) Fire(entry *logrus.Entry) error {
	if tagObj, loaded := entry.Data["tag"]; loaded {
		tag := tagObj.(string)
		delete(entry.Data, "tag")
		entry.Message = strings.ReplaceAll(entry.Message, tag+": ", "")
		entry.Message = "[" + tag + "]: " + entry.Message
	}
	if idObj, loaded := entry.Data["connection"]; loaded {
		delete(entry.Data, "connection")
		entry.Message = entry.Message + " (connection " + fmt.Sprint(idObj) + ")"
	}
	return nil
}
