// Package composer builds outgoing message payloads and routes them to the
// store's append operation. It owns client-side validation (whitespace-only
// text never reaches the network) and the three payload shapes: plain
// message, question, and threaded reply with its optional denormalized
// quote.
package composer

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/geniality/event-chat-backend/internal/domain"
)

// AnonymousName is the pseudonym used when the author opted into anonymity.
const AnonymousName = "Anonymous"

// DefaultQuoteMaxRunes caps the denormalized replyTo quote so reply
// payloads stay bounded no matter how long the quoted message was.
const DefaultQuoteMaxRunes = 120

var (
	// ErrEmptyText is returned when the text is empty or whitespace-only;
	// no append is attempted.
	ErrEmptyText = errors.New("message text is empty")

	// ErrNotAQuestion is returned when a threaded reply targets a message
	// that is not a question.
	ErrNotAQuestion = errors.New("thread target is not a question")
)

// Appender is the single store capability the composer needs.
type Appender interface {
	// Append writes a new message at path and returns the store-assigned key.
	Append(ctx context.Context, path string, m domain.Message) (string, error)
}

// Composer builds and sends messages for one caller in one conversation.
type Composer struct {
	// Store receives the built payloads.
	Store Appender
	// Path addresses the conversation's message collection.
	Path string
	// Name is the resolved display name (pseudonym already applied).
	Name string
	// QuestionsView forces every send to question type, matching the
	// dedicated questions view where plain messages cannot be composed.
	QuestionsView bool
	// QuoteMaxRunes caps replyTo quotes by rune length.
	QuoteMaxRunes int
}

// New constructs a Composer with the default quote cap.
func New(store Appender, path, name string, questionsView bool) *Composer {
	return &Composer{
		Store:         store,
		Path:          path,
		Name:          name,
		QuestionsView: questionsView,
		QuoteMaxRunes: DefaultQuoteMaxRunes,
	}
}

// DisplayName resolves the author name shown on sent messages: the
// anonymity flag replaces the real name with the pseudonym.
func DisplayName(name string, anonymous bool) string {
	if anonymous {
		return AnonymousName
	}
	return name
}

// SendMessage appends a plain message, or a question when the composer is
// bound to the questions view. The store assigns key and timestamp.
func (c *Composer) SendMessage(ctx context.Context, text string) (string, error) {
	if c.QuestionsView {
		return c.SendQuestion(ctx, text)
	}
	text, err := validateText(text)
	if err != nil {
		return "", err
	}
	return c.Store.Append(ctx, c.Path, domain.Message{
		Text: text,
		Name: c.Name,
		Type: domain.TypeMessage,
	})
}

// SendQuestion appends a question with its like state initialized and the
// highlighted marker set.
func (c *Composer) SendQuestion(ctx context.Context, text string) (string, error) {
	text, err := validateText(text)
	if err != nil {
		return "", err
	}
	zero := 0
	return c.Store.Append(ctx, c.Path, domain.Message{
		Text:        text,
		Name:        c.Name,
		Type:        domain.TypeQuestion,
		Likes:       map[string]bool{},
		LikesCount:  &zero,
		Highlighted: true,
	})
}

// SendReply appends a message into the reply thread of question. When
// quoted is a specific message being answered, a truncated replyTo quote is
// embedded, unless the quote would just repeat the thread's own question,
// where the thread association already supplies the context.
// Replies are never promoted to question type.
func (c *Composer) SendReply(ctx context.Context, question domain.Message, text string, quoted *domain.Message) (string, error) {
	if !question.IsQuestion() {
		return "", ErrNotAQuestion
	}
	text, err := validateText(text)
	if err != nil {
		return "", err
	}
	m := domain.Message{
		Text:      text,
		Name:      c.Name,
		Type:      domain.TypeMessage,
		ThreadKey: question.Key,
	}
	if quoted != nil && quoted.Key != "" && quoted.Key != question.Key {
		m.ReplyTo = &domain.ReplyRef{
			Key:  quoted.Key,
			Name: quoted.Name,
			Text: c.clipQuote(quoted.Text),
		}
	}
	return c.Store.Append(ctx, c.Path, m)
}

// clipQuote truncates a quote to the configured maximum rune length.
func (c *Composer) clipQuote(text string) string {
	max := c.QuoteMaxRunes
	if max <= 0 {
		max = DefaultQuoteMaxRunes
	}
	if utf8.RuneCountInString(text) > max {
		return string([]rune(text)[:max])
	}
	return text
}

// validateText trims and rejects empty input before any network call.
func validateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	return text, nil
}
