package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/pinnacle/pkg/logger"
)

const (
	defaultWhatsAppBaseURL = "https://graph.facebook.com/v18.0"
	whatsAppTimeout        = 10 * time.Second
	maxErrorBody           = 64 << 10
)

// WhatsAppConfig holds Cloud API credentials.
type WhatsAppConfig struct {
	Token   string
	PhoneID string
	BaseURL string
}

// WhatsAppSender posts text messages to the WhatsApp Cloud API.
type WhatsAppSender struct {
	cfg    WhatsAppConfig
	client *http.Client
	logger logger.Logger
}

// NewWhatsAppSender returns a sender. client may be nil.
func NewWhatsAppSender(cfg WhatsAppConfig, client *http.Client, l logger.Logger) (*WhatsAppSender, error) {
	if cfg.Token == "" || cfg.PhoneID == "" {
		return nil, fmt.Errorf("%w: whatsapp token and phone id are required", ErrNotConfigured)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultWhatsAppBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = &http.Client{Timeout: whatsAppTimeout}
	}
	if l == nil {
		l = logger.Get()
	}
	return &WhatsAppSender{cfg: cfg, client: client, logger: l.Named("notify.whatsapp")}, nil
}

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

type whatsAppErrorBody struct {
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (s *WhatsAppSender) Send(ctx context.Context, to, message string) error {
	body, err := json.Marshal(whatsAppMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             whatsAppText{Body: message},
	})
	if err != nil {
		return fmt.Errorf("encode whatsapp message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.cfg.BaseURL, s.cfg.PhoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb whatsAppErrorBody
		if raw, rerr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); rerr == nil && json.Unmarshal(raw, &eb) == nil && eb.Error != nil {
			apiErr.Message = eb.Error.Message
			apiErr.Code = eb.Error.Code
		}
		return apiErr
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	s.logger.Info(ctx, "whatsapp message sent", logger.String("to", to))
	return nil
}
