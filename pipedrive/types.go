package pipedrive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// BookingDetailsField is the account-specific custom field holding booking
// details on deals.
const BookingDetailsField = "8f4b27fbd9dfc70d2296f23ce76987051ad7324e"

// User is the subset of a Pipedrive user exposed by get-users.
type User struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	ActiveFlag bool   `json:"active_flag"`
	RoleName   string `json:"role_name,omitempty"`
}

// Pipeline keeps the identifying fields typed and the full object raw so it
// can be re-emitted unchanged.
type Pipeline struct {
	ID   int64
	Name string
	Raw  json.RawMessage
}

func (p *Pipeline) UnmarshalJSON(b []byte) error {
	var head struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	p.ID, p.Name = head.ID, head.Name
	p.Raw = append(json.RawMessage(nil), b...)
	return nil
}

func (p Pipeline) MarshalJSON() ([]byte, error) {
	if len(p.Raw) > 0 {
		return p.Raw, nil
	}
	return json.Marshal(map[string]any{"id": p.ID, "name": p.Name})
}

// Stage is a pipeline stage kept as a generic object so callers can annotate it.
type Stage map[string]any

// Ref is an id/name pair. Pipedrive renders related entities either as a bare
// id or as an object carrying id (or value) and name.
type Ref struct {
	ID   int64
	Name string
}

func (r *Ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*r = Ref{}
		return nil
	}
	if b[0] != '{' {
		var n flexNumber
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("ref: %w", err)
		}
		*r = Ref{ID: int64(n)}
		return nil
	}
	var obj struct {
		ID    *flexNumber `json:"id"`
		Value *flexNumber `json:"value"`
		Name  string      `json:"name"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("ref: %w", err)
	}
	r.Name = obj.Name
	switch {
	case obj.ID != nil:
		r.ID = int64(*obj.ID)
	case obj.Value != nil:
		r.ID = int64(*obj.Value)
	}
	return nil
}

// flexNumber accepts a JSON number, a numeric string, or null. Unparseable
// strings decode as zero.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*n = 0
			return nil
		}
		*n = flexNumber(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = flexNumber(f)
	return nil
}

// Deal normalizes the two shapes Pipedrive uses for deals: the list/detail
// object and the search item.
type Deal struct {
	ID               int64
	Title            string
	Value            float64
	Currency         string
	Status           string
	Stage            Ref
	PipelineID       int64
	PipelineName     string
	Owner            Ref
	Organization     Ref
	Person           Ref
	AddTime          string
	LastActivityDate string
	CloseTime        string
	WonTime          string
	LostTime         string
	NotesCount       int
	Notes            []json.RawMessage
	BookingDetails   json.RawMessage
	Raw              json.RawMessage
}

type dealWire struct {
	ID               int64           `json:"id"`
	Title            string          `json:"title"`
	Value            flexNumber      `json:"value"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	StageID          *Ref            `json:"stage_id"`
	Stage            *Ref            `json:"stage"`
	PipelineID       *Ref            `json:"pipeline_id"`
	Pipeline         *Ref            `json:"pipeline"`
	UserID           *Ref            `json:"user_id"`
	Owner            *Ref            `json:"owner"`
	OwnerName        string          `json:"owner_name"`
	OrgID            *Ref            `json:"org_id"`
	Org              *Ref            `json:"org"`
	Organization     *Ref            `json:"organization"`
	OrgName          string          `json:"org_name"`
	PersonID         *Ref            `json:"person_id"`
	Person           *Ref            `json:"person"`
	PersonName       string          `json:"person_name"`
	AddTime          *string         `json:"add_time"`
	LastActivityDate *string         `json:"last_activity_date"`
	CloseTime        *string         `json:"close_time"`
	WonTime          *string         `json:"won_time"`
	LostTime         *string         `json:"lost_time"`
	NotesCount       flexNumber      `json:"notes_count"`
	Notes            json.RawMessage `json:"notes"`
}

func (d *Deal) UnmarshalJSON(b []byte) error {
	var w dealWire
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("deal: %w", err)
	}
	var custom map[string]json.RawMessage
	if err := json.Unmarshal(b, &custom); err != nil {
		return fmt.Errorf("deal: %w", err)
	}

	*d = Deal{
		ID:               w.ID,
		Title:            w.Title,
		Value:            float64(w.Value),
		Currency:         w.Currency,
		Status:           w.Status,
		Stage:            mergeRef(w.Stage, w.StageID, ""),
		Owner:            mergeRef(w.Owner, w.UserID, w.OwnerName),
		Organization:     mergeRef(firstRef(w.Org, w.Organization), w.OrgID, w.OrgName),
		Person:           mergeRef(w.Person, w.PersonID, w.PersonName),
		AddTime:          deref(w.AddTime),
		LastActivityDate: deref(w.LastActivityDate),
		CloseTime:        deref(w.CloseTime),
		WonTime:          deref(w.WonTime),
		LostTime:         deref(w.LostTime),
		NotesCount:       int(w.NotesCount),
		Raw:              append(json.RawMessage(nil), b...),
	}
	pl := mergeRef(w.Pipeline, w.PipelineID, "")
	d.PipelineID, d.PipelineName = pl.ID, pl.Name

	if len(w.Notes) > 0 && w.Notes[0] == '[' {
		_ = json.Unmarshal(w.Notes, &d.Notes)
	}
	if v, ok := custom[BookingDetailsField]; ok && isTruthyJSON(v) {
		d.BookingDetails = v
	}
	return nil
}

func (d Deal) MarshalJSON() ([]byte, error) {
	if len(d.Raw) > 0 {
		return d.Raw, nil
	}
	return json.Marshal(map[string]any{"id": d.ID, "title": d.Title})
}

// mergeRef prefers the embedded object, falling back to the *_id reference
// and finally to a flat name field.
func mergeRef(obj, id *Ref, name string) Ref {
	var r Ref
	if id != nil {
		r = *id
	}
	if obj != nil {
		if obj.ID != 0 {
			r.ID = obj.ID
		}
		if obj.Name != "" {
			r.Name = obj.Name
		}
	}
	if r.Name == "" {
		r.Name = name
	}
	return r
}

func firstRef(refs ...*Ref) *Ref {
	for _, r := range refs {
		if r != nil {
			return r
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// isTruthyJSON reports whether v is neither null, false, 0 nor "".
func isTruthyJSON(v json.RawMessage) bool {
	switch string(bytes.TrimSpace(v)) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}

// SearchItems unwraps the {items:[{item:...}]} shape returned by the search
// endpoints.
func SearchItems[T any](data json.RawMessage) ([]T, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, nil
	}
	var wrapper struct {
		Items []struct {
			Item T `json:"item"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("decode search items: %w", err)
	}
	out := make([]T, 0, len(wrapper.Items))
	for _, it := range wrapper.Items {
		out = append(out, it.Item)
	}
	return out, nil
}
