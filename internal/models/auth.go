package models

// AuthEvent событие смены состояния аутентификации.
type AuthEvent struct {
	UserUID       string
	SessionID     string
	Authenticated bool
}

// LoginResult результат успешного входа.
type LoginResult struct {
	Token     string   `json:"token"`
	SessionID string   `json:"session_id"`
	Profile   *Profile `json:"user"`
}

// Виды уведомлений, публикуемых в очередь рассылки.
const (
	NotificationVerification  = "verification"
	NotificationPasswordReset = "password_reset"
	NotificationSubscription  = "subscription"
)

// Notification письмо, которое должен отправить почтовый воркер.
type Notification struct {
	Kind  string `json:"kind"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Code  string `json:"code,omitempty"`
	Text  string `json:"text,omitempty"`
}
