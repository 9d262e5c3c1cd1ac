// Package notify delivers templated notifications. Dispatch is asynchronous
// and best-effort: a failed delivery is logged, never propagated, so the
// transaction that triggered it is unaffected.
package notify

type Template string

const (
	TemplateTicketCreated   Template = "ticket-created"
	TemplateTicketAssigned  Template = "ticket-assigned"
	TemplateTicketCommented Template = "ticket-commented"
)

type Recipient struct {
	Name  string
	Email string
}

// Data carries the template fields: ticket_key, ticket_title, actor,
// comment_text and the like.
type Data map[string]string

type Dispatcher interface {
	Send(template Template, to Recipient, data Data)
}
