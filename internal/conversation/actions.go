package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"resident-intake/internal/intent"
	"resident-intake/internal/normalize"
	"resident-intake/internal/store"
	"resident-intake/pkg/logger"
)

// reply answers with a fixed template and keeps the state.
func (e *Engine) reply(key string) action {
	return func(_ context.Context, st *step, m *message) error {
		st.reply = e.tpl.Render(m.lang, key, nil)
		return nil
	}
}

// moveTo changes state without touching any ticket.
func (e *Engine) moveTo(to State, key string) action {
	return func(_ context.Context, st *step, m *message) error {
		st.to = to
		st.reply = e.tpl.Render(m.lang, key, nil)
		return nil
	}
}

// intake handles a message on a session that is not in a dialogue.
func (e *Engine) intake(ctx context.Context, st *step, m *message) error {
	if normalize.IsGreeting(m.text) {
		e.greet(ctx, st, m)
		return nil
	}
	if m.kind == InputNewIssue && len(strings.Fields(m.text)) <= 3 {
		return e.startOver(ctx, st, m)
	}
	if !e.deps.Classifier.IsMeaningful(ctx, m.text, m.strict) {
		st.reply = e.tpl.Render(m.lang, "not_meaningful", nil)
		return nil
	}
	if st.sess.Language == "" {
		st.sess.Language = m.lang
	}
	if m.kind == InputCompound {
		return e.holdCompound(ctx, st, m)
	}
	return e.openTicket(ctx, st, m, m.raw)
}

// greet answers the first greeting in a throttle window, warns on the second
// and ignores the rest. Greetings never write.
func (e *Engine) greet(ctx context.Context, st *step, m *message) {
	st.readOnly = true
	switch n := e.deps.Throttle.NoteGreeting(ctx, m.in.PropertyID, m.in.Phone); {
	case n <= 1:
		st.reply = e.tpl.Render(m.lang, "greeting", nil)
	case n == 2:
		st.reply = e.tpl.Render(m.lang, "throttled", nil)
	default:
		st.ignored = true
	}
}

func (e *Engine) holdCompound(_ context.Context, st *step, m *message) error {
	if st.sess.Language == "" {
		st.sess.Language = m.lang
	}
	st.sess.PendingReport = m.raw
	st.to = StateConfirmingSplit
	st.reply = e.tpl.Render(m.lang, "split_prompt", nil)
	return nil
}

func (e *Engine) fileCombined(ctx context.Context, st *step, m *message) error {
	report := st.sess.PendingReport
	if strings.TrimSpace(report) == "" {
		return e.startOver(ctx, st, m)
	}
	return e.openTicket(ctx, st, m, report)
}

func (e *Engine) oneAtATime(_ context.Context, st *step, m *message) error {
	st.sess.PendingReport = ""
	st.to = StateIdle
	st.reply = e.tpl.Render(m.lang, "one_at_a_time", nil)
	return nil
}

// startOver drops any previous issue and waits for a new report.
func (e *Engine) startOver(_ context.Context, st *step, m *message) error {
	st.sess.PreviousTicketID = nil
	st.sess.PendingReport = ""
	st.to = StateIdle
	st.reply = e.tpl.Render(m.lang, "new_issue_prompt", nil)
	return nil
}

// openTicket creates a ticket from raw and shows its preview.
func (e *Engine) openTicket(ctx context.Context, st *step, m *message, raw string) error {
	if st.sess.Language == "" {
		st.sess.Language = m.lang
	}
	now := e.deps.Now().UTC()
	t := store.Ticket{
		ID:                e.deps.NewID(),
		PropertyID:        m.in.PropertyID,
		Phone:             m.in.Phone,
		Status:            store.TicketStatusNew,
		Language:          st.sess.Language,
		AwaitingUserReply: true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	res := e.describe(ctx, &t, raw)
	e.place(ctx, &t, res.Category == intent.CategoryCommonArea, m.resident)
	if ref := strings.TrimSpace(m.in.PhotoRef); ref != "" {
		t.Images = append(t.Images, ref)
	}
	if err := e.relate(ctx, &t); err != nil {
		return err
	}

	st.creates = append(st.creates, t)
	st.sess.CurrentTicketID = store.StrPtr(t.ID)
	st.sess.PreviousTicketID = nil
	st.sess.PendingReport = ""
	st.to = StatePreview
	st.ticketID = t.ID
	st.reply = e.preview(st.sess.Language, t)
	return nil
}

// confirm opens the previewed ticket for the maintenance team.
func (e *Engine) confirm(ctx context.Context, st *step, m *message) error {
	t, ok, err := e.current(ctx, st, m)
	if err != nil || !ok {
		return err
	}
	if t.Status == store.TicketStatusNew {
		t.Status = store.TicketStatusOpen
	}
	t.AwaitingUserReply = false
	t.UpdatedAt = e.deps.Now().UTC()

	st.updates = append(st.updates, t)
	st.to = StateConfirmed
	st.ticketID = t.ID
	st.reply = e.tpl.Render(m.lang, "confirmed", map[string]string{"ticket_id": t.ID})
	if t.DiagnosisFee > 0 {
		st.reply += "\n" + e.tpl.Render(m.lang, "confirmed_fee", map[string]string{"fee": formatFee(t.DiagnosisFee)})
	}
	return nil
}

// replayConfirm repeats the confirmation without writing anything.
func (e *Engine) replayConfirm(ctx context.Context, st *step, m *message) error {
	id := store.Deref(st.sess.CurrentTicketID)
	if id == "" {
		return e.intake(ctx, st, m)
	}
	st.readOnly = true
	st.ticketID = id
	st.reply = e.tpl.Render(m.lang, "already_confirmed", map[string]string{"ticket_id": id})
	return nil
}

func (e *Engine) cancel(ctx context.Context, st *step, m *message) error {
	t, ok, err := e.current(ctx, st, m)
	if err != nil || !ok {
		return err
	}
	t.Status = store.TicketStatusCancelled
	t.AwaitingUserReply = false
	t.UpdatedAt = e.deps.Now().UTC()

	st.updates = append(st.updates, t)
	st.to = StateCancelled
	st.ticketID = t.ID
	st.reply = e.tpl.Render(m.lang, "cancelled", nil)
	return nil
}

// toggleLocation flips the ticket between the resident's unit and the common
// area. The fee follows the location.
func (e *Engine) toggleLocation(ctx context.Context, st *step, m *message) error {
	t, ok, err := e.current(ctx, st, m)
	if err != nil || !ok {
		return err
	}
	common := !t.IsCommonArea
	e.place(ctx, &t, common, m.resident)
	if common {
		t.IntentCategory = string(intent.CategoryCommonArea)
	} else {
		t.IntentCategory = string(intent.CategoryUnit)
	}
	if err := e.relate(ctx, &t); err != nil {
		return err
	}
	return e.showUpdated(st, t)
}

// applyEdit replaces the description. Location and fee stay as they are.
func (e *Engine) applyEdit(ctx context.Context, st *step, m *message) error {
	t, ok, err := e.current(ctx, st, m)
	if err != nil || !ok {
		return err
	}
	e.describe(ctx, &t, m.raw)
	t.Embedding = nil
	if err := e.relate(ctx, &t); err != nil {
		return err
	}
	return e.showUpdated(st, t)
}

func (e *Engine) attachPhoto(ctx context.Context, st *step, m *message) error {
	t, ok, err := e.current(ctx, st, m)
	if err != nil || !ok {
		return err
	}
	t.Images = append(t.Images, strings.TrimSpace(m.in.PhotoRef))
	return e.showUpdated(st, t)
}

// continuePrevious adds the message to the ticket of a closed conversation.
// A ticket that is gone or finished is replaced by a new one.
func (e *Engine) continuePrevious(ctx context.Context, st *step, m *message) error {
	id := store.Deref(st.sess.PreviousTicketID)
	if id == "" {
		return e.openTicket(ctx, st, m, m.raw)
	}
	prev, err := e.deps.Store.GetTicket(ctx, m.in.PropertyID, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && prev.Status.Closed()) {
		return e.openTicket(ctx, st, m, m.raw)
	}
	if err != nil {
		return err
	}

	e.describe(ctx, &prev, prev.DescriptionRaw+"\n"+m.raw)
	prev.Embedding = nil
	if err := e.relate(ctx, &prev); err != nil {
		return err
	}
	prev.AwaitingUserReply = true

	st.sess.CurrentTicketID = store.StrPtr(prev.ID)
	st.sess.PreviousTicketID = nil
	return e.showUpdated(st, prev)
}

func (e *Engine) showUpdated(st *step, t store.Ticket) error {
	t.UpdatedAt = e.deps.Now().UTC()
	st.updates = append(st.updates, t)
	st.to = StatePreview
	st.ticketID = t.ID
	st.reply = e.preview(st.sess.Language, t)
	return nil
}

// current loads the session's ticket. When the ticket has disappeared the
// session drops back to idle and ok is false.
func (e *Engine) current(ctx context.Context, st *step, m *message) (store.Ticket, bool, error) {
	id := store.Deref(st.sess.CurrentTicketID)
	if id != "" {
		t, err := e.deps.Store.GetTicket(ctx, m.in.PropertyID, id)
		if err == nil {
			return t, true, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return store.Ticket{}, false, err
		}
	}
	logger.From(ctx).Warn("session ticket missing, resetting", slog.String("state", string(st.from)))
	st.sess.CurrentTicketID = nil
	st.to = StateIdle
	st.reply = e.tpl.Render(m.lang, "new_issue_prompt", nil)
	return store.Ticket{}, false, nil
}

// describe sets the descriptions and intent of t from raw. Non-English text is
// translated so staff always read English.
func (e *Engine) describe(ctx context.Context, t *store.Ticket, raw string) intent.Result {
	t.DescriptionRaw = raw
	clean := normalize.Clean(raw)
	if t.Language != "" && t.Language != normalize.LangEnglish && e.deps.Translator != nil {
		clean = normalize.Clean(e.deps.Translator.Translate(ctx, clean, normalize.LangEnglish))
	}
	t.DescriptionClean = clean

	res := e.deps.Classifier.Classify(ctx, clean)
	t.IntentCategory = string(res.Category)
	t.IntentSource = string(res.Source)
	t.IntentConfidence = res.Confidence
	return res
}

// place puts t in the common area or in the resident's unit. Only unit
// tickets carry a diagnosis fee.
func (e *Engine) place(ctx context.Context, t *store.Ticket, common bool, r store.Resident) {
	t.IsCommonArea = common
	t.UnitID = nil
	t.DiagnosisFee = 0
	if common {
		return
	}
	t.UnitID = store.StrPtr(r.UnitID)
	if t.UnitID != nil {
		t.DiagnosisFee = e.fee(ctx, t.PropertyID)
	}
}

func (e *Engine) fee(ctx context.Context, propertyID string) int64 {
	if e.deps.Fees == nil {
		return e.deps.DefaultFee
	}
	return e.deps.Fees.DiagnosisFee(ctx, propertyID)
}

// relate embeds t if needed and links it to its best match. A missing
// embedding leaves the ticket unlinked; a failed read of the open tickets
// aborts the step.
func (e *Engine) relate(ctx context.Context, t *store.Ticket) error {
	if len(t.Embedding) == 0 && e.deps.Embedder != nil {
		t.Embedding = e.deps.Embedder.Embed(ctx, t.DescriptionClean)
	}
	res, err := e.deps.Detector.Detect(ctx, e.deps.Store, *t)
	if err != nil {
		return fmt.Errorf("duplicate detection for ticket %s: %w", t.ID, err)
	}
	res.Apply(t)
	return nil
}

// preview renders the ticket summary followed by the menu.
func (e *Engine) preview(lang string, t store.Ticket) string {
	r := func(key string, vars map[string]string) string { return e.tpl.Render(lang, key, vars) }

	lines := []string{
		r("preview_header", nil),
		r("issue_line", map[string]string{"description": normalize.Clean(t.DescriptionRaw)}),
	}
	if t.UnitID != nil {
		lines = append(lines, r("location_unit", map[string]string{"unit": *t.UnitID}))
	} else {
		lines = append(lines, r("location_common", nil))
	}
	if t.DiagnosisFee > 0 {
		lines = append(lines, r("fee_line", map[string]string{"fee": formatFee(t.DiagnosisFee)}))
	} else {
		lines = append(lines, r("no_fee_line", nil))
	}
	if n := len(t.Images); n > 0 {
		lines = append(lines, r("photos_line", map[string]string{"count": strconv.Itoa(n)}))
	}
	switch {
	case t.DuplicateOf != nil:
		lines = append(lines, r("duplicate_note", map[string]string{"ref": *t.DuplicateOf}))
	case t.RelatedTo != nil:
		lines = append(lines, r("related_note", map[string]string{"ref": *t.RelatedTo}))
	}
	lines = append(lines, r("menu", nil))
	return strings.Join(lines, "\n")
}

func formatFee(v int64) string { return strconv.FormatInt(v, 10) }
