package rabbitmq

import "github.com/magabrotheeeer/aicheck/internal/models"

// QueueConfig связывает очередь с ключом маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues возвращает очереди почтовых уведомлений.
// Ключ маршрутизации совпадает с видом уведомления.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "notification.verification", RoutingKey: models.NotificationVerification},
		{QueueName: "notification.password_reset", RoutingKey: models.NotificationPasswordReset},
		{QueueName: "notification.subscription", RoutingKey: models.NotificationSubscription},
	}
}
