package store

import (
	"context"
	"sync"
)

// Memory is an in-memory Store for tests and local development.
// Transactions work on a copy of the data that replaces the original on success.
type Memory struct {
	txMu  *sync.Mutex
	state *memState
	inTx  bool
}

type memState struct {
	mu sync.Mutex

	sessions   map[string]Session
	tickets    map[string]Ticket
	order      []string
	residents  map[string]Resident
	properties map[string]string

	writeErr error
}

func NewMemory() *Memory {
	return &Memory{
		txMu: &sync.Mutex{},
		state: &memState{
			sessions:   map[string]Session{},
			tickets:    map[string]Ticket{},
			residents:  map[string]Resident{},
			properties: map[string]string{},
		},
	}
}

func pairKey(propertyID, phone string) string { return propertyID + "|" + phone }

// AddResident registers a phone number for a property.
func (m *Memory) AddResident(r Resident) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	m.state.residents[pairKey(r.PropertyID, r.Phone)] = r
}

// AddProperty maps a channel number onto a property.
func (m *Memory) AddProperty(channelNumber, propertyID string) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	m.state.properties[channelNumber] = propertyID
}

// FailWrites makes every subsequent write return err; nil restores normal behavior.
func (m *Memory) FailWrites(err error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	m.state.writeErr = err
}

// Tickets returns all tickets in creation order.
func (m *Memory) Tickets() []Ticket {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	out := make([]Ticket, 0, len(m.state.order))
	for _, id := range m.state.order {
		out = append(out, cloneTicket(m.state.tickets[id]))
	}
	return out
}

func (m *Memory) GetSession(ctx context.Context, propertyID, phone string) (Session, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	s, ok := m.state.sessions[pairKey(propertyID, phone)]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) SaveSession(ctx context.Context, s Session) error {
	if s.PropertyID == "" || s.Phone == "" {
		return ErrInvalidInput
	}
	return m.write(func(st *memState) {
		st.sessions[pairKey(s.PropertyID, s.Phone)] = s
	})
}

func (m *Memory) GetTicket(ctx context.Context, propertyID, ticketID string) (Ticket, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	t, ok := m.state.tickets[ticketID]
	if !ok || t.PropertyID != propertyID {
		return Ticket{}, ErrNotFound
	}
	return cloneTicket(t), nil
}

func (m *Memory) CreateTicket(ctx context.Context, t Ticket) error {
	if t.ID == "" || t.PropertyID == "" {
		return ErrInvalidInput
	}
	conflict := false
	err := m.write(func(st *memState) {
		if _, exists := st.tickets[t.ID]; exists {
			conflict = true
			return
		}
		st.order = append(st.order, t.ID)
		st.tickets[t.ID] = cloneTicket(t)
	})
	if err == nil && conflict {
		return ErrConflict
	}
	return err
}

func (m *Memory) UpdateTicket(ctx context.Context, t Ticket) error {
	m.state.mu.Lock()
	cur, ok := m.state.tickets[t.ID]
	m.state.mu.Unlock()
	if !ok || cur.PropertyID != t.PropertyID {
		return ErrNotFound
	}
	if cur.Status != TicketStatusNew && cur.Status != TicketStatusOpen {
		t.Status = cur.Status
	}
	return m.write(func(st *memState) {
		st.tickets[t.ID] = cloneTicket(t)
	})
}

func (m *Memory) ListOpenTickets(ctx context.Context, propertyID, excludeID string) ([]Ticket, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	out := make([]Ticket, 0)
	for _, id := range m.state.order {
		t := m.state.tickets[id]
		if t.PropertyID != propertyID || t.ID == excludeID {
			continue
		}
		if t.Status.Closed() || len(t.Embedding) == 0 {
			continue
		}
		out = append(out, cloneTicket(t))
	}
	return out, nil
}

func (m *Memory) LookupResident(ctx context.Context, propertyID, phone string) (Resident, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	r, ok := m.state.residents[pairKey(propertyID, phone)]
	if !ok {
		return Resident{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ResolveProperty(ctx context.Context, channelNumber string) (string, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	p, ok := m.state.properties[channelNumber]
	if !ok {
		return "", ErrNotFound
	}
	return p, nil
}

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if m.inTx {
		return fn(ctx, m)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	staged := &Memory{txMu: m.txMu, state: m.state.clone(), inTx: true}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	m.state.replace(staged.state)
	return nil
}

func (m *Memory) write(apply func(st *memState)) error {
	if !m.inTx {
		m.txMu.Lock()
		defer m.txMu.Unlock()
	}
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	if m.state.writeErr != nil {
		return m.state.writeErr
	}
	apply(m.state)
	return nil
}

func (st *memState) clone() *memState {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := &memState{
		sessions:   make(map[string]Session, len(st.sessions)),
		tickets:    make(map[string]Ticket, len(st.tickets)),
		order:      append([]string(nil), st.order...),
		residents:  make(map[string]Resident, len(st.residents)),
		properties: make(map[string]string, len(st.properties)),
		writeErr:   st.writeErr,
	}
	for k, v := range st.sessions {
		out.sessions[k] = v
	}
	for k, v := range st.tickets {
		out.tickets[k] = cloneTicket(v)
	}
	for k, v := range st.residents {
		out.residents[k] = v
	}
	for k, v := range st.properties {
		out.properties[k] = v
	}
	return out
}

func (st *memState) replace(from *memState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	from.mu.Lock()
	defer from.mu.Unlock()
	st.sessions = from.sessions
	st.tickets = from.tickets
	st.order = from.order
	st.residents = from.residents
	st.properties = from.properties
}

func cloneTicket(t Ticket) Ticket {
	t.Embedding = append([]float32(nil), t.Embedding...)
	t.Images = append([]string(nil), t.Images...)
	return t
}
