package errors

import "time"

// Context is the occurrence context captured when an error is created:
// when it happened, on what device and app version, and optionally for
// which user and session. It is a value; once attached to an Error it
// is never mutated, so the analytics engine can trust what it reads.
type Context struct {
	Timestamp  time.Time         `json:"timestamp"`
	UserID     string            `json:"user_id,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	Device     string            `json:"device,omitempty"`
	AppVersion string            `json:"app_version,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// NewContext creates a context stamped with the current time.
func NewContext(device, appVersion string) Context {
	return Context{
		Timestamp:  time.Now(),
		Device:     device,
		AppVersion: appVersion,
	}
}

// WithUser returns a copy with the user identifier set.
func (c Context) WithUser(userID string) Context {
	c = c.clone()
	c.UserID = userID
	return c
}

// WithSession returns a copy with the session identifier set.
func (c Context) WithSession(sessionID string) Context {
	c = c.clone()
	c.SessionID = sessionID
	return c
}

// WithMeta returns a copy with one metadata key added.
func (c Context) WithMeta(key, value string) Context {
	c = c.clone()
	if c.Metadata == nil {
		c.Metadata = make(map[string]string, 1)
	}
	c.Metadata[key] = value
	return c
}

// Stamped returns a copy carrying a fresh timestamp, used to derive
// per-occurrence contexts from a process-wide template.
func (c Context) Stamped() Context {
	c = c.clone()
	c.Timestamp = time.Now()
	return c
}

// clone copies the metadata map so derived contexts never share storage.
func (c Context) clone() Context {
	if c.Metadata == nil {
		return c
	}
	meta := make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		meta[k] = v
	}
	c.Metadata = meta
	return c
}
