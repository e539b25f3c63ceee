package invoice

import (
	"context"
	"fmt"

	"github.com/router-for-me/QRMenuBilling/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SendReminder records a payment reminder for an invoice. It returns false
// without error when the invoice is not payable, the reminder cap is
// reached, or a reminder already went out today.
func (s *Service) SendReminder(ctx context.Context, id uint64) (bool, error) {
	sent := false
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, errLock := lockInvoice(tx, id)
		if errLock != nil {
			return errLock
		}
		now := s.now()
		if !CanSendReminder(inv, now, s.opts.MaxReminders) {
			return nil
		}
		stamp := now.UTC()
		number := inv.ReminderCount + 1
		emailLog, errLog := appendEmailLog(inv.EmailLog, EmailLogEntry{
			Type:           "reminder",
			SentAt:         stamp,
			ReminderNumber: number,
		})
		if errLog != nil {
			return errLog
		}
		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND reminder_count = ?", inv.ID, inv.ReminderCount).
			Updates(map[string]any{
				"reminder_count":        gorm.Expr("reminder_count + ?", 1),
				"last_reminder_sent_at": stamp,
				"email_log":             emailLog,
				"updated_at":            stamp,
			})
		if res.Error != nil {
			return fmt.Errorf("invoice: record reminder: %w", res.Error)
		}
		sent = res.RowsAffected > 0
		return nil
	})
	if errTx != nil {
		return false, errTx
	}
	if sent {
		log.WithField("invoice_id", id).Debug("invoice reminder recorded")
	}
	return sent, nil
}
