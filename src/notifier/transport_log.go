package notifier

import logger "github.com/sirupsen/logrus"

// LogTransport is the logging-only default Transport — suitable for
// tests and for wiring a real SMTP transport later, grounded on the
// teacher's logger.WithError(err).Error(...) idiom
// (src/executors/start_loop.go).
type LogTransport struct{}

func (LogTransport) Send(alert Alert) error {
	logger.WithFields(map[string]interface{}{
		"component": "notifier_transport", "key": alert.Key,
	}).Info("alert transport (log-only): " + alert.Message)
	return nil
}
