// Package permissions implements the tiered authorization gate. Grants are
// persisted per user as a set of tier labels; checks honor the hierarchy
// Admin > Mod > Trusted, so a higher tier passes any lower-tier check. One
// hard-coded author identity bypasses every check.
package permissions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/onnwee/guildkeeper/codec"
	"github.com/onnwee/guildkeeper/store"
)

// Tier is one permission level.
type Tier string

const (
	TierAdmin   Tier = "admin"
	TierMod     Tier = "mod"
	TierTrusted Tier = "trusted"
)

var tierRank = map[Tier]int{
	TierAdmin:   3,
	TierMod:     2,
	TierTrusted: 1,
}

// ParseTier normalizes a user-supplied tier name.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tierRank[t]; !ok {
		return "", fmt.Errorf("unknown permission tier %q", s)
	}
	return t, nil
}

const grantsTable store.Table = "permissions"

type grantRecord struct {
	Tiers []string `json:"tiers"`
}

var grantKind = codec.Kind[grantRecord]{Version: 1}

// Gate answers permission checks against persisted grants.
type Gate struct {
	Store *store.Store
	// AuthorID always passes. Empty disables the bypass.
	AuthorID string
}

// Has reports whether userID holds tier or any higher tier.
func (g *Gate) Has(userID string, tier Tier) (bool, error) {
	if g.AuthorID != "" && userID == g.AuthorID {
		return true, nil
	}
	raw, err := g.Store.Get(grantsTable, userID)
	if err != nil {
		if err == store.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	rec, upgraded, err := grantKind.Decode(raw)
	if err != nil {
		return false, fmt.Errorf("permissions record for %s: %w", userID, err)
	}
	if upgraded {
		if enc, eerr := grantKind.Encode(rec); eerr == nil {
			_ = g.Store.Put(grantsTable, userID, enc)
		}
	}
	need := tierRank[tier]
	for _, t := range rec.Tiers {
		if tierRank[Tier(t)] >= need {
			return true, nil
		}
	}
	return false, nil
}

// CheckAdmin, CheckMod, CheckTrusted are the named per-tier forms.
func (g *Gate) CheckAdmin(userID string) (bool, error)   { return g.Has(userID, TierAdmin) }
func (g *Gate) CheckMod(userID string) (bool, error)     { return g.Has(userID, TierMod) }
func (g *Gate) CheckTrusted(userID string) (bool, error) { return g.Has(userID, TierTrusted) }

// Grant adds tier to userID's grant set. Granting an already-held tier is a
// no-op.
func (g *Gate) Grant(userID string, tier Tier) error {
	if _, ok := tierRank[tier]; !ok {
		return fmt.Errorf("unknown permission tier %q", tier)
	}
	return g.Store.Update(grantsTable, userID, func(old []byte, found bool) ([]byte, error) {
		var rec grantRecord
		if found {
			var err error
			rec, _, err = grantKind.Decode(old)
			if err != nil {
				return nil, fmt.Errorf("permissions record for %s: %w", userID, err)
			}
		}
		for _, t := range rec.Tiers {
			if Tier(t) == tier {
				return grantKind.Encode(rec)
			}
		}
		rec.Tiers = append(rec.Tiers, string(tier))
		sort.Strings(rec.Tiers)
		return grantKind.Encode(rec)
	})
}

// Revoke removes tier from userID's grant set. Removing the last tier
// deletes the record.
func (g *Gate) Revoke(userID string, tier Tier) error {
	return g.Store.Update(grantsTable, userID, func(old []byte, found bool) ([]byte, error) {
		if !found {
			return nil, nil
		}
		rec, _, err := grantKind.Decode(old)
		if err != nil {
			return nil, fmt.Errorf("permissions record for %s: %w", userID, err)
		}
		kept := rec.Tiers[:0]
		for _, t := range rec.Tiers {
			if Tier(t) != tier {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			return nil, nil
		}
		rec.Tiers = kept
		return grantKind.Encode(rec)
	})
}

// List returns the tiers held by userID, sorted.
func (g *Gate) List(userID string) ([]Tier, error) {
	raw, err := g.Store.Get(grantsTable, userID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	rec, _, err := grantKind.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("permissions record for %s: %w", userID, err)
	}
	out := make([]Tier, 0, len(rec.Tiers))
	for _, t := range rec.Tiers {
		out = append(out, Tier(t))
	}
	return out, nil
}

// ListAll returns every user with at least one grant, keyed by user id.
func (g *Gate) ListAll() (map[string][]Tier, error) {
	entries, err := g.Store.Scan(grantsTable)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]Tier, len(entries))
	for _, e := range entries {
		rec, _, err := grantKind.Decode(e.Value)
		if err != nil {
			continue
		}
		tiers := make([]Tier, 0, len(rec.Tiers))
		for _, t := range rec.Tiers {
			tiers = append(tiers, Tier(t))
		}
		out[e.Key] = tiers
	}
	return out, nil
}
