package normalize

import (
	"encoding/json"

	"atask/internal/service"
)

type wireUser struct {
	ID          json.RawMessage `json:"id"`
	UID         string          `json:"uid"`
	Email       string          `json:"email"`
	DisplayName string          `json:"displayName"`
	PhotoURL    string          `json:"photoURL"`
	AuthType    string          `json:"authType"`
	CreatedAt   json.RawMessage `json:"createdAt"`
}

// User parses the user object of an auth response.
// Returns nil for null or non-object payloads.
func User(raw json.RawMessage) *service.User {
	if !isObject(raw) {
		return nil
	}
	var w wireUser
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil
	}
	u := &service.User{
		ID:          idString(w.ID),
		Email:       w.Email,
		DisplayName: w.DisplayName,
		PhotoURL:    w.PhotoURL,
		AuthType:    service.AuthMethod(w.AuthType),
	}
	if u.ID == "" {
		u.ID = w.UID
	}
	if ts, ok := ParseTime(w.CreatedAt); ok {
		u.CreatedAt = ts
	}
	return u
}
