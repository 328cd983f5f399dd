package notify

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"dupdb/internal/dupdb"
)

const (
	notificationsDest  = "org.freedesktop.Notifications"
	notificationsPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsIface = "org.freedesktop.Notifications.Notify"
)

// busConn is the part of *dbus.Conn the notifier uses.
type busConn interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	Close() error
}

// DesktopNotifier raises freedesktop notifications over the session bus.
// A connection is opened per alert, so a restarted session bus is picked up.
type DesktopNotifier struct {
	appName   string
	maxListed int
	connect   func(ctx context.Context) (busConn, error)
}

// NewDesktopNotifier creates a notifier on the user's session bus.
func NewDesktopNotifier(appName string, maxListed int) *DesktopNotifier {
	return &DesktopNotifier{
		appName:   appName,
		maxListed: maxListed,
		connect: func(ctx context.Context) (busConn, error) {
			conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
	}
}

// Notify shows one alert for paths. It returns once the notification server
// has accepted the alert or ctx expires.
func (n *DesktopNotifier) Notify(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	msg := Compose(n.appName, paths, n.maxListed)

	conn, err := n.connect(ctx)
	if err != nil {
		return fmt.Errorf("connecting to session bus: %w", err)
	}
	defer conn.Close()

	hints := map[string]dbus.Variant{}
	if msg.Image != "" {
		hints["image-path"] = dbus.MakeVariant("file://" + msg.Image)
	}

	obj := conn.Object(notificationsDest, notificationsPath)
	call := obj.CallWithContext(ctx, notificationsIface, 0,
		msg.AppName,   // app_name
		uint32(0),     // replaces_id
		"",            // app_icon
		msg.Summary,   // summary
		msg.Body,      // body
		[]string{},    // actions
		hints,         // hints
		int32(-1),     // expire_timeout: server default
	)
	if call.Err != nil {
		return fmt.Errorf("sending notification: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("reading notification id: %w", err)
	}
	return nil
}

var _ dupdb.Notifier = (*DesktopNotifier)(nil)
