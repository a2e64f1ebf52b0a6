package browser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Selectors is the catalogue of ordered lookup strategies for the WhatsApp
// Web client. Every list is tried in order, first match wins. Queries
// starting with "./" are relative to the outgoing message bubble created by
// the send being confirmed.
type Selectors struct {
	// OutgoingMessage matches every outgoing message bubble of the open chat.
	OutgoingMessage string `yaml:"outgoing_message"`

	Authenticated []Matcher `yaml:"authenticated"`
	LoginQR       []Matcher `yaml:"login_qr"`
	Dismiss       []Matcher `yaml:"dismiss"`
	// MessageInput[0] is the primary fast-path query; the rest are fallbacks.
	MessageInput []Matcher `yaml:"message_input"`
	SendButton   []Matcher `yaml:"send_button"`
	Delivered    []Matcher `yaml:"delivered"`
	Sent         []Matcher `yaml:"sent"`
	Queued       []Matcher `yaml:"queued"`
	ErrorBanners []Matcher `yaml:"error_banners"`
}

// DefaultSelectors returns the built-in catalogue.
func DefaultSelectors() Selectors {
	return Selectors{
		OutgoingMessage: `//div[contains(@class,"message-out")]`,
		Authenticated: []Matcher{
			{Name: "side-pane", Query: `//div[@id="side"]`},
			{Name: "chat-list", Query: `//div[@id="pane-side"]`},
			{Name: "search-box", Query: `//div[@id="side"]//div[@role="textbox"]`},
		},
		LoginQR: []Matcher{
			{Name: "qr-canvas-en", Query: `//canvas[@aria-label="Scan this QR code to link a device!"]`},
			{Name: "qr-canvas-es", Query: `//canvas[@aria-label="Escanea el código QR"]`},
			{Name: "qr-ref", Query: `//div[@data-ref]//canvas`},
		},
		Dismiss: []Matcher{
			{Name: "dialog-ok", Query: `//div[@role="dialog"]//button[.//div[text()="OK"] or text()="OK"]`},
			{Name: "dialog-continue", Query: `//div[@role="dialog"]//button[contains(., "Continue") or contains(., "Continuar")]`},
			{Name: "dialog-accept", Query: `//div[@role="dialog"]//button[contains(., "Aceptar") or contains(., "Got it")]`},
			{Name: "popup-button", Query: `//div[@data-animate-modal-popup="true"]//button`},
			{Name: "close-button", Query: `//div[@role="dialog"]//*[@aria-label="Close" or @aria-label="Cerrar"]`},
		},
		MessageInput: []Matcher{
			{Name: "footer-compose", Query: `//footer//div[@contenteditable="true"][@data-tab="10"]`},
			{Name: "compose-tab", Query: `//div[@contenteditable="true"][@data-tab="10"]`},
			{Name: "footer-textbox", Query: `//footer//div[@role="textbox"]`},
			{Name: "placeholder-en", Query: `//div[@contenteditable="true"][@aria-placeholder="Type a message"]`},
			{Name: "placeholder-es", Query: `//div[@contenteditable="true"][@aria-placeholder="Escribe un mensaje"]`},
			{Name: "footer-editable", Query: `//footer//div[@contenteditable="true"]`},
		},
		SendButton: []Matcher{
			{Name: "send-label-en", Query: `//button[@aria-label="Send"]`},
			{Name: "send-label-es", Query: `//button[@aria-label="Enviar"]`},
			{Name: "send-icon", Query: `//span[@data-icon="send"]/..`},
		},
		Delivered: []Matcher{
			{Name: "double-check", Query: `.//span[@data-icon="msg-dblcheck"]`},
		},
		Sent: []Matcher{
			{Name: "single-check", Query: `.//span[@data-icon="msg-check"]`},
		},
		Queued: []Matcher{
			{Name: "clock", Query: `.//span[@data-icon="msg-time"]`},
		},
		ErrorBanners: []Matcher{
			{
				Name:   "invalid-number-en",
				Query:  `//div[@role="dialog"][contains(., "invalid")]`,
				Reason: "invalid phone number",
			},
			{
				Name:   "invalid-number-es",
				Query:  `//div[@role="dialog"][contains(., "no es válido")]`,
				Reason: "invalid phone number",
			},
			{
				Name:   "message-failed",
				Query:  `.//span[contains(@data-icon,"error") or contains(@data-icon,"failed")]`,
				Reason: "message failed to send",
			},
		},
	}
}

// LoadSelectors reads a YAML catalogue and merges it over the defaults:
// every non-empty list in the file replaces the default list.
func LoadSelectors(path string) (Selectors, error) {
	defaults := DefaultSelectors()
	if path == "" {
		return defaults, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Selectors{}, fmt.Errorf("failed to read selectors file: %w", err)
	}

	return ParseSelectors(raw)
}

// ParseSelectors decodes a YAML catalogue and merges it over the defaults.
func ParseSelectors(raw []byte) (Selectors, error) {
	var overrides Selectors
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&overrides); err != nil && !errors.Is(err, io.EOF) {
		return Selectors{}, fmt.Errorf("failed to decode selectors: %w", err)
	}

	merged := DefaultSelectors()
	if overrides.OutgoingMessage != "" {
		merged.OutgoingMessage = overrides.OutgoingMessage
	}
	mergeList(&merged.Authenticated, overrides.Authenticated)
	mergeList(&merged.LoginQR, overrides.LoginQR)
	mergeList(&merged.Dismiss, overrides.Dismiss)
	mergeList(&merged.MessageInput, overrides.MessageInput)
	mergeList(&merged.SendButton, overrides.SendButton)
	mergeList(&merged.Delivered, overrides.Delivered)
	mergeList(&merged.Sent, overrides.Sent)
	mergeList(&merged.Queued, overrides.Queued)
	mergeList(&merged.ErrorBanners, overrides.ErrorBanners)

	if err := merged.Validate(); err != nil {
		return Selectors{}, err
	}
	return merged, nil
}

// Validate checks that every list has at least one non-empty query.
func (s Selectors) Validate() error {
	lists := map[string][]Matcher{
		"authenticated": s.Authenticated,
		"login_qr":      s.LoginQR,
		"message_input": s.MessageInput,
		"delivered":     s.Delivered,
		"sent":          s.Sent,
		"queued":        s.Queued,
	}
	for name, list := range lists {
		if len(list) == 0 {
			return fmt.Errorf("selectors: %s is empty", name)
		}
	}
	for _, list := range [][]Matcher{
		s.Authenticated, s.LoginQR, s.Dismiss, s.MessageInput, s.SendButton,
		s.Delivered, s.Sent, s.Queued, s.ErrorBanners,
	} {
		for _, m := range list {
			if m.Query == "" {
				return fmt.Errorf("selectors: matcher %q has no query", m.Name)
			}
			if IsRelative(m.Query) && s.OutgoingMessage == "" {
				return fmt.Errorf("selectors: matcher %q is relative but outgoing_message is empty", m.Name)
			}
		}
	}
	return nil
}

func mergeList(dst *[]Matcher, override []Matcher) {
	if len(override) > 0 {
		*dst = override
	}
}
