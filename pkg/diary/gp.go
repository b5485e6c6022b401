package diary

import "time"

// GPQuery is one outbound question to the patient's GP practice.
type GPQuery struct {
	ID           string      `json:"id"`
	QueryType    string      `json:"query_type,omitempty"`
	Text         string      `json:"text"`
	Sent         time.Time   `json:"sent"`
	ReminderSent *time.Time  `json:"reminder_sent,omitempty"`
	Status       QueryStatus `json:"status"`
	Received     *time.Time  `json:"received,omitempty"`
	Attachments  []string    `json:"attachments,omitempty"`
}

// GPChannel holds GP identifying details and the query exchange history.
type GPChannel struct {
	GPName   string `json:"gp_name,omitempty"`
	Practice string `json:"practice,omitempty"`
	Contact  string `json:"contact,omitempty"`
	Channel  string `json:"channel,omitempty"`
	// Permissions granted to the GP for patient-directed events
	// (send_messages, full_access). Empty by default.
	Permissions []string  `json:"permissions,omitempty"`
	Queries     []GPQuery `json:"queries"`
}

// AddQuery appends a new pending query. Sent defaults to now.
func (g *GPChannel) AddQuery(q GPQuery) {
	if q.Sent.IsZero() {
		q.Sent = time.Now().UTC()
	}
	if q.Status == "" {
		q.Status = QueryPending
	}
	g.Queries = append(g.Queries, q)
}

// GetQueryByID returns the query with the given id, or nil.
func (g *GPChannel) GetQueryByID(id string) *GPQuery {
	for i := range g.Queries {
		if g.Queries[i].ID == id {
			return &g.Queries[i]
		}
	}
	return nil
}

// HasPendingQueries reports whether any query is still pending.
func (g *GPChannel) HasPendingQueries() bool {
	for i := range g.Queries {
		if g.Queries[i].Status == QueryPending {
			return true
		}
	}
	return false
}

// PendingQueries returns all queries with status pending, in send order.
func (g *GPChannel) PendingQueries() []GPQuery {
	out := []GPQuery{}
	for _, q := range g.Queries {
		if q.Status == QueryPending {
			out = append(out, q)
		}
	}
	return out
}

// MarkResponded records a GP response against a pending query.
// Returns false when the query id is unknown.
func (g *GPChannel) MarkResponded(id string, received time.Time, attachments []string) bool {
	q := g.GetQueryByID(id)
	if q == nil {
		return false
	}
	q.Status = QueryResponded
	r := received.UTC()
	q.Received = &r
	if len(attachments) > 0 {
		q.Attachments = append(q.Attachments, attachments...)
	}
	return true
}

// MarkReminderSent stamps reminder_sent on the query.
// Returns false when the query id is unknown.
func (g *GPChannel) MarkReminderSent(id string, at time.Time) bool {
	q := g.GetQueryByID(id)
	if q == nil {
		return false
	}
	t := at.UTC()
	q.ReminderSent = &t
	return true
}

func (g GPChannel) clone() GPChannel {
	out := g
	out.Permissions = cloneStrings(g.Permissions)
	if g.Queries != nil {
		out.Queries = make([]GPQuery, len(g.Queries))
		for i, q := range g.Queries {
			c := q
			c.ReminderSent = cloneTime(q.ReminderSent)
			c.Received = cloneTime(q.Received)
			c.Attachments = cloneStrings(q.Attachments)
			out.Queries[i] = c
		}
	}
	return out
}
