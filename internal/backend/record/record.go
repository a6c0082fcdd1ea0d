package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jo-hoe/goscratch/internal/backend/store"
	"github.com/jo-hoe/goscratch/internal/grid"
)

const (
	// Key holds the composite record.
	Key            = "scratchcard"
	CurrentVersion = 1

	// Keys written by earlier releases, one field per key.
	LegacyImageKey      = "savedImage"
	LegacyRevealedKey   = "revealedCells"
	LegacyClickCountKey = "clickCount"
)

var (
	ErrUnsupportedVersion = errors.New("unsupported record version")
	ErrMalformed          = errors.New("malformed record")
)

// Record is the durable snapshot of one grid.
type Record struct {
	Version       int    `json:"version"`
	SavedImage    string `json:"savedImage"`
	RevealedCells []int  `json:"revealedCells"`
	ClickCount    int    `json:"clickCount"`
}

// FromState captures the persisted fields of s.
func FromState(s grid.State) Record {
	revealed := make([]int, len(s.Revealed))
	copy(revealed, s.Revealed)
	return Record{
		Version:       CurrentVersion,
		SavedImage:    s.ImageSource,
		RevealedCells: revealed,
		ClickCount:    s.ClickCount,
	}
}

func (r Record) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}
	return string(data), nil
}

func Decode(raw string) (Record, error) {
	var r Record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if r.Version != CurrentVersion {
		return Record{}, fmt.Errorf("record version %d: %w", r.Version, ErrUnsupportedVersion)
	}
	return r, nil
}

// Save writes the record as a single value so a crash can never leave the
// image, the revealed list and the counter out of sync.
func Save(ctx context.Context, s store.Store, r Record) error {
	encoded, err := r.Encode()
	if err != nil {
		return err
	}
	return s.Set(ctx, Key, encoded)
}

// Load returns the stored record and whether one was found. When only the
// legacy per-field keys exist they are folded into a record, written under
// Key and removed.
func Load(ctx context.Context, s store.Store) (Record, bool, error) {
	raw, ok, err := s.Get(ctx, Key)
	if err != nil {
		return Record{}, false, err
	}
	if ok {
		r, err := Decode(raw)
		if err != nil {
			return Record{}, false, err
		}
		return r, true, nil
	}

	r, found, err := loadLegacy(ctx, s)
	if err != nil || !found {
		return Record{}, false, err
	}

	slog.Info("migrating legacy record keys", "image_bytes", len(r.SavedImage), "revealed", len(r.RevealedCells))
	err = Save(ctx, s, r)
	if errors.Is(err, store.ErrQuotaExceeded) {
		// The legacy copy of the image takes the space the record needs.
		slog.Info("quota exhausted during migration; dropping legacy keys first")
		removeLegacy(ctx, s)
		if err = Save(ctx, s, r); err != nil {
			slog.Warn("migrated record does not fit; restoring legacy keys", "error", err)
			restoreLegacy(ctx, s, r)
			return r, true, nil
		}
		return r, true, nil
	}
	if err != nil {
		// The legacy keys stay in place so the next start can try again.
		slog.Warn("failed to persist migrated record", "error", err)
		return r, true, nil
	}
	removeLegacy(ctx, s)
	return r, true, nil
}

func removeLegacy(ctx context.Context, s store.Store) {
	for _, k := range []string{LegacyImageKey, LegacyRevealedKey, LegacyClickCountKey} {
		if err := s.Remove(ctx, k); err != nil {
			slog.Warn("failed to remove legacy key", "key", k, "error", err)
		}
	}
}

// restoreLegacy writes r back in the per-field layout it was read from.
func restoreLegacy(ctx context.Context, s store.Store, r Record) {
	revealed, err := json.Marshal(r.RevealedCells)
	if err != nil {
		slog.Warn("failed to encode legacy revealed cells", "error", err)
		return
	}
	for k, v := range map[string]string{
		LegacyImageKey:      r.SavedImage,
		LegacyRevealedKey:   string(revealed),
		LegacyClickCountKey: strconv.Itoa(r.ClickCount),
	} {
		if err := s.Set(ctx, k, v); err != nil {
			slog.Warn("failed to restore legacy key", "key", k, "error", err)
		}
	}
}

func loadLegacy(ctx context.Context, s store.Store) (Record, bool, error) {
	image, hasImage, err := s.Get(ctx, LegacyImageKey)
	if err != nil {
		return Record{}, false, err
	}
	revealedRaw, hasRevealed, err := s.Get(ctx, LegacyRevealedKey)
	if err != nil {
		return Record{}, false, err
	}
	countRaw, hasCount, err := s.Get(ctx, LegacyClickCountKey)
	if err != nil {
		return Record{}, false, err
	}
	if !hasImage && !hasRevealed && !hasCount {
		return Record{}, false, nil
	}

	r := Record{Version: CurrentVersion, SavedImage: image}
	if hasRevealed {
		if err := json.Unmarshal([]byte(revealedRaw), &r.RevealedCells); err != nil {
			slog.Warn("ignoring malformed legacy revealed cells", "error", err)
			r.RevealedCells = nil
		}
	}
	if hasCount {
		n, err := strconv.Atoi(countRaw)
		if err != nil {
			slog.Warn("ignoring malformed legacy click count", "value", countRaw, "error", err)
		} else {
			r.ClickCount = n
		}
	}
	return r, true, nil
}
