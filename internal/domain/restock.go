package domain

import "time"

// RestockSubscription — заявка «сообщите, когда появится». VariantID пустой
// означает «любой вариант этого продукта». Записи не удаляются: после
// уведомления они остаются как аудиторский след, а активной считается
// только запись с Notified=false.
type RestockSubscription struct {
	ID         string
	ProductID  string
	VariantID  string
	Email      string
	Phone      string
	Notified   bool
	NotifiedAt *time.Time
	CreatedAt  time.Time
}

// Validate проверяет ключевые поля подписки.
func (s *RestockSubscription) Validate() []error {
	var errs []error

	if s.ProductID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if s.Email == "" {
		errs = append(errs, ErrSubscriptionEmailRequired)
	}

	return errs
}
