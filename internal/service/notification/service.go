package notification

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/pkg/logger"
)

// Config holds SMTP settings for outbound alert mail.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	Coordinator string
	Enabled     bool
}

// Service mails inventory alerts to the nurse coordinator. Delivery is
// best-effort; a failed mail never affects clinical flow.
type Service struct {
	cfg    Config
	dialer *gomail.Dialer
	logger *logger.Logger
}

func NewService(cfg Config, log *logger.Logger) *Service {
	return &Service{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: log.WithComponent("notification"),
	}
}

// SendStockAlert mails one alert. No-op when mail is disabled.
func (s *Service) SendStockAlert(alert *model.StockAlert) error {
	if !s.cfg.Enabled {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", s.cfg.Coordinator)
	m.SetHeader("Subject", fmt.Sprintf("[%s] stock alert: %s", alert.Level, alert.MedicationName))
	m.SetBody("text/plain", formatAlert(alert))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send stock alert mail: %w", err)
	}
	return nil
}

func formatAlert(alert *model.StockAlert) string {
	body := fmt.Sprintf(
		"Medication: %s\nReason: %s\nTotal stock remaining: %d\n",
		alert.MedicationName, alert.Reason, alert.TotalStock,
	)
	if alert.LotID != nil {
		body += fmt.Sprintf("Lot: %s (%s)\n", alert.LotNumber, alert.LotID)
	}
	return body
}
