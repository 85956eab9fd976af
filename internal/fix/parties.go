package fix

// Party is one entry of the NoPartyIDs(453) repeating group.
type Party struct {
	ID     string
	Source string
	Role   string
}

// Parties extracts the NoPartyIDs repeating group from m, in wire order.
func (m *Message) Parties() []Party {
	var parties []Party
	var cur *Party
	for _, f := range m.Body {
		switch f.Tag {
		case TagNoPartyIDs:
			// count field itself carries no party data
		case TagPartyID:
			parties = append(parties, Party{})
			cur = &parties[len(parties)-1]
			cur.ID = f.Value
		case TagPartyIDSource:
			if cur != nil {
				cur.Source = f.Value
			}
		case TagPartyRole:
			if cur != nil {
				cur.Role = f.Value
			}
		}
	}
	return parties
}

// HasParties reports whether m already carries a NoPartyIDs group.
func (m *Message) HasParties() bool {
	return m.Has(TagNoPartyIDs)
}

// SetSingleParty replaces any existing NoPartyIDs group with a single
// entry. Used by the client session to inject the authenticated party id
// onto an otherwise party-less request (spec §4.1 "Party-ID injection").
func (m *Message) SetSingleParty(p Party) {
	m.clearParties()
	m.Body = append(m.Body,
		Field{Tag: TagNoPartyIDs, Value: "1"},
		Field{Tag: TagPartyID, Value: p.ID},
		Field{Tag: TagPartyIDSource, Value: p.Source},
		Field{Tag: TagPartyRole, Value: p.Role},
	)
}

func (m *Message) clearParties() {
	out := m.Body[:0]
	for _, f := range m.Body {
		switch f.Tag {
		case TagNoPartyIDs, TagPartyID, TagPartyIDSource, TagPartyRole:
			continue
		}
		out = append(out, f)
	}
	m.Body = out
}
