package app

import (
	"github.com/allisson/orderflow/internal/notification"
	notificationHTTP "github.com/allisson/orderflow/internal/notification/http"
)

// NotificationHub returns the in-process broadcaster behind the notification stream.
func (c *Container) NotificationHub() *notification.Hub {
	c.notificationHubInit.Do(func() {
		c.notificationHub = notification.NewHub(c.Logger())
	})
	return c.notificationHub
}

// APINotifier returns the notifier used by order placement.
func (c *Container) APINotifier() (notification.Notifier, error) {
	if !c.config.NotificationEnabled {
		return notification.NoopNotifier{}, nil
	}
	return c.NotificationHub(), nil
}

// WorkerNotifier returns the notifier used by the order processor. An embedded worker
// publishes straight to the hub; a standalone worker relays through the API.
func (c *Container) WorkerNotifier() (notification.Notifier, error) {
	return lazy(c, &c.workerNotifierInit, "workerNotifier", &c.workerNotifier, func() (notification.Notifier, error) {
		switch {
		case !c.config.NotificationEnabled:
			return notification.NoopNotifier{}, nil
		case c.config.WorkerEmbedded:
			return c.NotificationHub(), nil
		default:
			// Zero selects the notifier's default timeout.
			return notification.NewHTTPNotifier(c.config.NotificationURL, 0, c.Logger()), nil
		}
	})
}

// NotificationHandler returns the HTTP handler for the notification stream and relay.
func (c *Container) NotificationHandler() *notificationHTTP.NotificationHandler {
	c.notificationHandlerInit.Do(func() {
		c.notificationHandler = notificationHTTP.NewNotificationHandler(c.NotificationHub(), c.Logger())
	})
	return c.notificationHandler
}
