package core

import (
	"bytes"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

var (
	templates map[string]*texttmpl.Template
	tmplMu    sync.RWMutex
)

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// ParseEmailTemplates loads all *.txt email templates from the given FS dir.
// Files prefixed with "_" are treated as shared bases and skipped.
func ParseEmailTemplates(logger Logger, fsys fs.FS, dir string) {
	cache := make(map[string]*texttmpl.Template)

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		logger.Error("core.ParseEmailTemplates: "+err.Error(), err)
		return
	}
	for _, entry := range entries {
		fname := entry.Name()
		if strings.HasPrefix(fname, "_") || path.Ext(fname) != ".txt" {
			continue
		}
		name := strings.TrimSuffix(fname, ".txt")
		tmpl, err := texttmpl.ParseFS(fsys, path.Join(dir, fname))
		if err != nil {
			logger.Error("core.ParseEmailTemplates: "+err.Error(), err)
			continue
		}
		cache[name] = tmpl.Option("missingkey=error")
	}

	tmplMu.Lock()
	templates = cache
	tmplMu.Unlock()
}

func (m *EmailMessage) Render() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	}
	if m.TemplateName == "" {
		return nil
	}

	tmplMu.RLock()
	tmpl, ok := templates[m.TemplateName]
	tmplMu.RUnlock()
	if !ok {
		return errors.Errorf("email template %q not parsed", m.TemplateName)
	}

	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, m.TemplateData); err != nil {
		return errors.Wrap(err, "executing email template")
	}
	m.TextContent = buff.String()
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return m.TextContent != "" }
