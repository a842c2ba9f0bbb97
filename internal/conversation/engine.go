package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"resident-intake/internal/audit"
	"resident-intake/internal/dedup"
	"resident-intake/internal/intent"
	"resident-intake/internal/normalize"
	"resident-intake/internal/store"
	"resident-intake/internal/throttle"
	"resident-intake/pkg/logger"
)

var (
	ErrInvalidInput = errors.New("conversation: invalid input")
	ErrNotApproved  = errors.New("conversation: phone not approved for property")
	ErrInternal     = errors.New("conversation: internal error")
)

// DefaultSessionTimeout is how long a mid-flow session may sit idle before
// the next message resets it.
const DefaultSessionTimeout = 24 * time.Hour

// Inbound is one resident message. Exactly one of Text, VoiceRef and PhotoRef
// drives normalization; text wins when several are present.
type Inbound struct {
	PropertyID string `json:"property_id"`
	Phone      string `json:"phone_number"`
	Text       string `json:"text,omitempty"`
	VoiceRef   string `json:"voice_ref,omitempty"`
	PhotoRef   string `json:"photo_ref,omitempty"`
}

func (in Inbound) validate() error {
	if strings.TrimSpace(in.PropertyID) == "" {
		return fmt.Errorf("%w: property_id required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Phone) == "" {
		return fmt.Errorf("%w: phone_number required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Text) == "" && strings.TrimSpace(in.VoiceRef) == "" && strings.TrimSpace(in.PhotoRef) == "" {
		return fmt.Errorf("%w: text, voice_ref or photo_ref required", ErrInvalidInput)
	}
	return nil
}

// Outcome is what the resident should hear back. An empty Reply with Ignored
// set means no reply is sent at all.
type Outcome struct {
	Reply    string `json:"reply_text,omitempty"`
	TicketID string `json:"ticket_id,omitempty"`
	Ignored  bool   `json:"ignored,omitempty"`
}

type Throttle interface {
	Check(ctx context.Context, propertyID, phone string) throttle.Result
	NoteGreeting(ctx context.Context, propertyID, phone string) int
}

type Normalizer interface {
	Resolve(ctx context.Context, in normalize.Input) string
}

type Classifier interface {
	Classify(ctx context.Context, text string) intent.Result
	IsMeaningful(ctx context.Context, text string, strict bool) bool
	IsNewIssuePhrase(text string) bool
}

type DuplicateDetector interface {
	Detect(ctx context.Context, src dedup.TicketLister, t store.Ticket) (dedup.Result, error)
}

// Embedder returns nil when no embedding could be produced.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Translator returns text unchanged when it cannot translate.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) string
}

type FeeSource interface {
	DiagnosisFee(ctx context.Context, propertyID string) int64
}

type AuditLog interface {
	Append(ctx context.Context, e audit.Event) error
}

// Deps are the collaborators of the engine. Store, Throttle, Normalizer,
// Classifier and Detector are required; the rest degrade to no-ops.
type Deps struct {
	Store      store.Store
	Throttle   Throttle
	Normalizer Normalizer
	Classifier Classifier
	Detector   DuplicateDetector
	Embedder   Embedder
	Translator Translator
	Fees       FeeSource
	Audit      AuditLog
	Templates  *Templates

	SessionTimeout time.Duration
	DefaultFee     int64

	Now   func() time.Time
	NewID func() string
}

// Engine is the conversation state machine. It is the only writer of sessions.
//
// Contract:
// - Callers serialize Handle per phone number; the engine does not lock.
// - Guard order: throttle, authorization, session intercept, greeting, meaningful check, create.
// - Every transition commits its ticket and session writes in one transaction or not at all.
// - Collaborator failures never abort a transition; persistence failures always do.
type Engine struct {
	deps  Deps
	tpl   *Templates
	table map[route]action
}

func NewEngine(d Deps) (*Engine, error) {
	if d.Store == nil || d.Throttle == nil || d.Normalizer == nil || d.Classifier == nil || d.Detector == nil {
		return nil, errors.New("conversation: store, throttle, normalizer, classifier and detector are required")
	}
	if d.SessionTimeout <= 0 {
		d.SessionTimeout = DefaultSessionTimeout
	}
	if d.DefaultFee <= 0 {
		d.DefaultFee = 30
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	e := &Engine{deps: d, tpl: d.Templates}
	if e.tpl == nil {
		e.tpl = defaultTemplates
	}
	e.table = e.transitions()
	if err := checkTable(e.table); err != nil {
		return nil, err
	}
	return e, nil
}

// message is an inbound message after normalization and categorization.
type message struct {
	in       Inbound
	raw      string
	text     string
	kind     Input
	lang     string
	strict   bool
	resident store.Resident
}

// step accumulates the effects of one transition until they are committed.
type step struct {
	sess store.Session
	from State
	to   State

	reply    string
	ticketID string
	ignored  bool

	creates []store.Ticket
	updates []store.Ticket

	// readOnly steps reply without writing anything.
	readOnly bool
	expired  bool
}

func (s *step) outcome() Outcome {
	return Outcome{Reply: s.reply, TicketID: s.ticketID, Ignored: s.ignored}
}

// Handle runs one inbound message through the state machine.
//
// Errors: ErrInvalidInput and ErrNotApproved carry no reply. ErrInternal comes
// with an Outcome holding a generic problem reply; the session is unchanged.
func (e *Engine) Handle(ctx context.Context, in Inbound) (Outcome, error) {
	if err := in.validate(); err != nil {
		return Outcome{}, err
	}
	log := logger.From(ctx).With(
		slog.String("property_id", in.PropertyID),
		slog.String("phone", logger.MaskPhone(in.Phone)),
	)
	ctx = logger.With(ctx, log)

	gate := e.deps.Throttle.Check(ctx, in.PropertyID, in.Phone)
	if !gate.Allowed {
		log.Info("message throttled", slog.Int("count", gate.Count), slog.Bool("newly_blocked", gate.NewlyBlocked))
		if gate.NewlyBlocked {
			return Outcome{Reply: e.tpl.Render(normalize.DetectLanguage(in.Text), "throttled", nil)}, nil
		}
		return Outcome{Ignored: true}, nil
	}

	res, err := e.deps.Store.LookupResident(ctx, in.PropertyID, in.Phone)
	switch {
	case errors.Is(err, store.ErrNotFound), err == nil && !res.Approved:
		log.Info("message from unapproved phone")
		return Outcome{}, ErrNotApproved
	case err != nil:
		return e.problem(ctx, normalize.DetectLanguage(in.Text), err)
	}

	sess, err := e.loadSession(ctx, in)
	if err != nil {
		return e.problem(ctx, normalize.DetectLanguage(in.Text), err)
	}
	st := &step{sess: sess}
	st.expired = e.expireIfStale(&st.sess)

	from, err := ParseState(st.sess.State)
	if err != nil {
		log.Warn("unknown session state, resetting", slog.String("state", st.sess.State))
		from = StateIdle
		resetSession(&st.sess)
	}
	st.from, st.to = from, from

	m := e.read(ctx, in, from, st.sess.Language)
	m.strict = gate.Level == throttle.LevelSoft
	m.resident = res

	if err := e.table[route{from, m.kind}](ctx, st, m); err != nil {
		return e.problem(ctx, m.lang, err)
	}
	if (st.readOnly || st.ignored) && !st.expired {
		e.logStep(ctx, st, m)
		return st.outcome(), nil
	}

	if err := e.commit(ctx, st, m); err != nil {
		return e.problem(ctx, m.lang, err)
	}
	e.record(ctx, st)
	e.logStep(ctx, st, m)
	return st.outcome(), nil
}

// Close is the operator command that ends a conversation. The resident can
// continue the previous ticket or start a new one afterwards.
func (e *Engine) Close(ctx context.Context, propertyID, phone string) (Outcome, error) {
	if err := (Inbound{PropertyID: propertyID, Phone: phone}).validate(); err != nil {
		return Outcome{}, err
	}
	ctx = logger.With(ctx, logger.From(ctx).With(
		slog.String("property_id", propertyID),
		slog.String("phone", logger.MaskPhone(phone)),
	))

	sess, err := e.deps.Store.GetSession(ctx, propertyID, phone)
	if errors.Is(err, store.ErrNotFound) {
		return Outcome{Ignored: true}, nil
	}
	if err != nil {
		return e.problem(ctx, "", err)
	}
	from, err := ParseState(sess.State)
	if err != nil {
		from = StateIdle
	}
	st := &step{sess: sess, from: from, to: StateClosed}
	if st.sess.CurrentTicketID != nil {
		st.sess.PreviousTicketID = st.sess.CurrentTicketID
	}
	st.sess.CurrentTicketID = nil
	st.sess.PendingReport = ""
	st.reply = e.tpl.Render(st.sess.Language, "closed", nil)
	st.ticketID = store.Deref(st.sess.PreviousTicketID)

	m := &message{in: Inbound{PropertyID: propertyID, Phone: phone}, lang: st.sess.Language}
	if err := e.commit(ctx, st, m); err != nil {
		return e.problem(ctx, st.sess.Language, err)
	}
	e.record(ctx, st)
	e.logStep(ctx, st, m)
	return st.outcome(), nil
}

func (e *Engine) loadSession(ctx context.Context, in Inbound) (store.Session, error) {
	sess, err := e.deps.Store.GetSession(ctx, in.PropertyID, in.Phone)
	if errors.Is(err, store.ErrNotFound) {
		now := e.deps.Now().UTC()
		return store.Session{
			ID:         e.deps.NewID(),
			PropertyID: in.PropertyID,
			Phone:      in.Phone,
			State:      string(StateIdle),
			CreatedAt:  now,
			UpdatedAt:  now,
		}, nil
	}
	return sess, err
}

// expireIfStale resets a mid-flow session that has been quiet for longer than
// the session timeout.
func (e *Engine) expireIfStale(s *store.Session) bool {
	if s.State == string(StateIdle) || s.UpdatedAt.IsZero() {
		return false
	}
	if e.deps.Now().Sub(s.UpdatedAt) <= e.deps.SessionTimeout {
		return false
	}
	resetSession(s)
	return true
}

func resetSession(s *store.Session) {
	s.State = string(StateIdle)
	s.CurrentTicketID = nil
	s.PreviousTicketID = nil
	s.PendingReport = ""
	s.Language = ""
}

// read normalizes the message and decides which input category it is in state.
func (e *Engine) read(ctx context.Context, in Inbound, state State, sessionLang string) *message {
	raw := strings.TrimSpace(e.deps.Normalizer.Resolve(ctx, normalize.Input{
		Text:     in.Text,
		VoiceRef: in.VoiceRef,
		PhotoRef: in.PhotoRef,
	}))
	m := &message{in: in, raw: raw, lang: sessionLang}
	if raw != normalize.PhotoPlaceholder {
		m.text = normalize.Clean(raw)
	}
	if m.lang == "" {
		m.lang = normalize.DetectLanguage(raw)
	}

	hasPhoto := strings.TrimSpace(in.PhotoRef) != ""
	switch {
	case hasPhoto && (raw == normalize.PhotoPlaceholder || state == StateAwaitingPhoto):
		m.kind = InputPhoto
	case m.text == "":
		m.kind = InputEmpty
	case choiceOf(raw) != 0:
		m.kind = choiceOf(raw)
	case e.deps.Classifier.IsNewIssuePhrase(m.text):
		m.kind = InputNewIssue
	case normalize.HasListSeparator(raw):
		m.kind = InputCompound
	default:
		m.kind = InputText
	}
	return m
}

// choiceOf maps a bare menu digit to its input, or returns 0.
func choiceOf(raw string) Input {
	s := strings.Trim(raw, " .)")
	if len(s) != 1 || s[0] < '1' || s[0] > '5' {
		return 0
	}
	return InputChoice1 + Input(s[0]-'1')
}

// commit writes the step: tickets first, then the session, in one transaction.
func (e *Engine) commit(ctx context.Context, st *step, m *message) error {
	now := e.deps.Now().UTC()
	st.sess.State = string(st.to)
	if !st.to.holdsTicket() {
		st.sess.CurrentTicketID = nil
	}
	if m.raw != "" {
		st.sess.LastMessage = m.raw
	}
	st.sess.UpdatedAt = now

	return e.deps.Store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		for _, t := range st.creates {
			if err := tx.CreateTicket(ctx, t); err != nil {
				return fmt.Errorf("create ticket: %w", err)
			}
		}
		for _, t := range st.updates {
			if err := tx.UpdateTicket(ctx, t); err != nil {
				return fmt.Errorf("update ticket: %w", err)
			}
		}
		if err := tx.SaveSession(ctx, st.sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		return nil
	})
}

// record appends best-effort audit events for a committed step.
func (e *Engine) record(ctx context.Context, st *step) {
	if e.deps.Audit == nil {
		return
	}
	log := logger.From(ctx)
	if st.expired {
		if err := e.deps.Audit.Append(ctx, audit.Event{
			PropertyID: st.sess.PropertyID,
			Type:       audit.EventTypeSessionExpired,
			Phone:      st.sess.Phone,
			ToState:    string(StateIdle),
			Message:    "session reset after inactivity",
		}); err != nil {
			log.Warn("audit append failed", slog.Any("err", err))
		}
	}
	if st.from == st.to && len(st.creates) == 0 && len(st.updates) == 0 {
		return
	}
	if err := e.deps.Audit.Append(ctx, audit.Event{
		PropertyID: st.sess.PropertyID,
		Type:       audit.EventTypeTransition,
		Phone:      st.sess.Phone,
		TicketID:   st.ticketID,
		FromState:  string(st.from),
		ToState:    string(st.to),
	}); err != nil {
		log.Warn("audit append failed", slog.Any("err", err))
	}
}

func (e *Engine) logStep(ctx context.Context, st *step, m *message) {
	logger.From(ctx).Info("conversation step",
		slog.String("from", string(st.from)),
		slog.String("to", string(st.to)),
		slog.String("input", m.kind.String()),
		slog.String("ticket_id", st.ticketID),
		slog.Bool("ignored", st.ignored),
		slog.Bool("expired", st.expired),
	)
}

// problem turns a persistence failure into ErrInternal with a generic reply.
func (e *Engine) problem(ctx context.Context, lang string, err error) (Outcome, error) {
	logger.From(ctx).Error("conversation step failed", slog.Any("err", err))
	return Outcome{Reply: e.tpl.Render(lang, "problem", nil)}, fmt.Errorf("%w: %w", ErrInternal, err)
}
