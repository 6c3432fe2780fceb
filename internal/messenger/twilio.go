package messenger

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// WhatsApp bodies over ~4096 characters are rejected by Twilio; truncate
// before that point and leave room for the ellipsis. The limit counts
// characters, so the cut must land on a rune boundary.
const maxBodyLen = 4000

type Twilio struct {
	sid     string
	token   string
	from    string
	baseURL string
	httpc   *http.Client
	log     zerolog.Logger
}

func NewTwilio(sid, token, from string, log zerolog.Logger) *Twilio {
	return &Twilio{
		sid:     sid,
		token:   token,
		from:    normalize(from),
		baseURL: "https://api.twilio.com",
		httpc:   &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("component", "twilio").Logger(),
	}
}

func (t *Twilio) Send(ctx context.Context, to, body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("empty message body")
	}
	if utf8.RuneCountInString(body) > maxBodyLen {
		runes := []rune(body)
		body = string(runes[:maxBodyLen-3]) + "..."
		t.log.Warn().Str("to", to).Msg("message truncated to transport limit")
	}

	form := url.Values{}
	form.Set("From", t.from)
	form.Set("To", normalize(to))
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.sid)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.sid, t.token)

	resp, err := t.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("twilio api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	t.log.Debug().Str("to", to).Int("len", len(body)).Msg("message sent")
	return nil
}

func normalize(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}
