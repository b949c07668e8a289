// Package store persists the host monitor's view of the network between
// runs.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"meshlink/internal/hostlink"
)

// Registry is the persisted monitor snapshot.
type Registry struct {
	UpdatedAt      time.Time     `yaml:"updated_at"`
	RunID          string        `yaml:"run_id,omitempty"`
	ReceiverOnline bool          `yaml:"receiver_online"`
	ReceiverSeenAt time.Time     `yaml:"receiver_seen_at,omitempty"`
	Senders        []SenderInfo  `yaml:"senders"`
	Sessions       []SessionInfo `yaml:"sessions,omitempty"`
}

// SenderInfo is the last known state of one sender.
type SenderInfo struct {
	ID           uint8     `yaml:"id"`
	Online       bool      `yaml:"online"`
	Motion       uint16    `yaml:"motion"`
	Ramp         uint16    `yaml:"ramp"`
	Seq          uint16    `yaml:"seq"`
	LastUpdateAt time.Time `yaml:"last_update_at"`
}

// SessionInfo is one completed motion session.
type SessionInfo struct {
	SenderID    uint8     `yaml:"sender_id"`
	StartAt     time.Time `yaml:"start_at"`
	EndAt       time.Time `yaml:"end_at"`
	DurationSec int64     `yaml:"duration_sec"`
}

// LoadRegistry reads the registry at path. A missing file yields an empty
// registry.
func LoadRegistry(path string) (*Registry, error) {
	reg := &Registry{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return reg, nil
	case err != nil:
		return nil, err
	}
	if err := yaml.Unmarshal(data, reg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return reg, nil
}

// SaveRegistry stamps UpdatedAt and replaces the file at path through a
// temporary sibling so readers never see a partial write.
func SaveRegistry(path string, reg *Registry) error {
	if reg == nil {
		return nil
	}
	reg.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(reg)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// FromBoard captures the board. Sessions already in prev are kept so the
// history survives restarts.
func FromBoard(b *hostlink.Board, prev *Registry, runID string) *Registry {
	reg := &Registry{
		RunID:          runID,
		ReceiverOnline: b.ReceiverOnline(),
		ReceiverSeenAt: b.ReceiverSeen(),
	}
	for _, s := range b.Senders() {
		reg.Senders = append(reg.Senders, SenderInfo{
			ID:           s.ID,
			Online:       s.Online,
			Motion:       s.Motion,
			Ramp:         s.Ramp,
			Seq:          s.Seq,
			LastUpdateAt: s.LastUpdate,
		})
	}
	if prev != nil {
		reg.Sessions = append(reg.Sessions, prev.Sessions...)
	}
	for _, m := range b.Sessions() {
		reg.Sessions = append(reg.Sessions, SessionInfo{
			SenderID:    m.SenderID,
			StartAt:     m.Start,
			EndAt:       m.End,
			DurationSec: int64(m.Duration() / time.Second),
		})
	}
	return reg
}

// Views converts persisted senders back into board state.
func (r *Registry) Views() []hostlink.SenderView {
	out := make([]hostlink.SenderView, 0, len(r.Senders))
	for _, s := range r.Senders {
		out = append(out, hostlink.SenderView{
			ID:         s.ID,
			Online:     s.Online,
			Motion:     s.Motion,
			Ramp:       s.Ramp,
			Seq:        s.Seq,
			LastUpdate: s.LastUpdateAt,
		})
	}
	return out
}
