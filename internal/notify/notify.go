package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	dbusDestination = "org.freedesktop.Notifications"
	dbusPath        = dbus.ObjectPath("/org/freedesktop/Notifications")
	dbusMethod      = dbusDestination + ".Notify"
)

type Urgency byte

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

type Notification struct {
	Summary string
	Body    string
	Icon    string
	Urgency Urgency
}

// Notifier delivers desktop notifications. Delivery is best effort: callers
// log errors and carry on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type Nop struct{}

func (Nop) Notify(context.Context, Notification) error {
	return nil
}

// DBusNotifier talks to the notification daemon on the session bus.
type DBusNotifier struct {
	appName string
}

func NewDBusNotifier(appName string) *DBusNotifier {
	return &DBusNotifier{appName: appName}
}

func (d *DBusNotifier) Notify(ctx context.Context, n Notification) error {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	hints := map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(n.Urgency))}
	call := conn.Object(dbusDestination, dbusPath).CallWithContext(ctx, dbusMethod, 0,
		d.appName, uint32(0), n.Icon, n.Summary, n.Body, []string{}, hints, int32(-1))
	if call.Err != nil {
		return fmt.Errorf("failed to send notification: %w", call.Err)
	}
	return nil
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}
