// Package notify delivers the per-run duplicate alert.
package notify

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"dupdb/internal/config"
	"dupdb/internal/dupdb"
)

// Summary is the alert title.
const Summary = "Duplicate Files detected"

const bodyIntro = "Duplicate files were saved to the watched directory by dupdb."

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".svg": true, ".tif": true, ".tiff": true,
}

// Message is a rendered alert.
type Message struct {
	AppName string
	Summary string
	Body    string
	// Image is an absolute path to preview, or "" for none.
	Image string
}

// Compose renders the alert for paths. The body lists file names, not full
// paths, one per line; after maxListed names the rest are counted instead.
// The first path is used as a preview when it is an image.
func Compose(appName string, paths []string, maxListed int) Message {
	var b strings.Builder
	b.WriteString(bodyIntro)
	for i, p := range paths {
		if maxListed > 0 && i == maxListed {
			fmt.Fprintf(&b, "\n … and %d more", len(paths)-maxListed)
			break
		}
		b.WriteString("\n • ")
		b.WriteString(filepath.Base(p))
	}

	msg := Message{
		AppName: appName,
		Summary: Summary,
		Body:    b.String(),
	}
	if len(paths) > 0 && imageExtensions[strings.ToLower(filepath.Ext(paths[0]))] {
		msg.Image = paths[0]
	}
	return msg
}

// LogNotifier writes alerts to the log. Used where no desktop session exists.
type LogNotifier struct {
	appName   string
	maxListed int
	logger    dupdb.Logger
}

func NewLogNotifier(appName string, maxListed int, logger dupdb.Logger) *LogNotifier {
	return &LogNotifier{appName: appName, maxListed: maxListed, logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	msg := Compose(n.appName, paths, n.maxListed)
	n.logger.Info(msg.Summary, "count", len(paths), "body", msg.Body)
	return nil
}

// NopNotifier drops every alert.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, []string) error { return nil }

// NewNotifierFromConfig creates a Notifier implementation based on the notify config type.
func NewNotifierFromConfig(cfg config.NotifyConfig, logger dupdb.Logger) (dupdb.Notifier, error) {
	switch cfg.Type {
	case "desktop":
		return NewDesktopNotifier(cfg.AppName, cfg.MaxListed), nil
	case "log":
		return NewLogNotifier(cfg.AppName, cfg.MaxListed, logger), nil
	case "none":
		return NopNotifier{}, nil
	default:
		return nil, fmt.Errorf("unknown notify type: %s", cfg.Type)
	}
}

var (
	_ dupdb.Notifier = (*LogNotifier)(nil)
	_ dupdb.Notifier = NopNotifier{}
)
