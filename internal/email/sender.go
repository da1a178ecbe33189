package email

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"time"

	"github.com/friendforge/internal/config"
)

// Sender отправляет коды входа по SMTP. Единственный вид писем в системе.
type Sender struct {
	cfg *config.SMTPConfig
}

func NewSender(cfg *config.SMTPConfig) *Sender {
	return &Sender{cfg: cfg}
}

func (s *Sender) SendOTP(ctx context.Context, to, code string) error {
	if s.cfg.Username == "" || s.cfg.Password == "" {
		return fmt.Errorf("email: SMTP не настроен")
	}
	from := s.cfg.FromEmail
	if from == "" {
		from = s.cfg.Username
	}
	msg := s.buildMessage(from, to, code)
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	// net/smtp не принимает контекст, поэтому ждём в select.
	done := make(chan error, 1)
	go func() { done <- smtp.SendMail(addr, auth, from, []string{to}, msg) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (s *Sender) buildMessage(from, to, code string) []byte {
	var buf bytes.Buffer
	buf.WriteString("From: " + s.cfg.FromName + " <" + from + ">\r\n")
	buf.WriteString("To: " + to + "\r\n")
	buf.WriteString("Subject: Код входа\r\n")
	buf.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&buf, "Ваш код входа: %s\n\nКод действителен 5 минут. Если вы не запрашивали вход, проигнорируйте это письмо.", code)
	return buf.Bytes()
}

// SendTest — проверка SMTP-настроек: письмо с кодом TEST-xxxx на свой адрес.
func (s *Sender) SendTest(ctx context.Context, to string) error {
	code := fmt.Sprintf("TEST-%d", time.Now().Unix()%10000)
	return s.SendOTP(ctx, to, code)
}
