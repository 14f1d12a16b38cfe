package services

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mapleroute/quotebot-backend/internal/domain"
	"github.com/mapleroute/quotebot-backend/internal/platform/logger"
)

// Post-quote actions a profile may offer.
const (
	ActionNewQuote = "new_quote"
	ActionDone     = "done"
)

// QuoteProfile is the per-context policy for the quote flow. Profiles are
// plain read-only records resolved per (group, user); they are never
// mutated at runtime.
type QuoteProfile struct {
	Name string `yaml:"name"`

	// Mode selection. When ForcedMode is set the air/sea prompt is skipped.
	ForcedMode domain.Mode `yaml:"forced_mode,omitempty"`

	// Service selection. When set, the named service (substring match) is
	// preferred over the cheapest quote.
	ForcedService string `yaml:"forced_service,omitempty"`

	// Visibility. Empty push targets mean "the session's own target".
	ShowCostInGroup   bool   `yaml:"show_cost_in_group"`
	CostPushTarget    string `yaml:"cost_push_target,omitempty"`
	ShowResultInGroup bool   `yaml:"show_result_in_group"`
	ResultPushTarget  string `yaml:"result_push_target,omitempty"`

	// Post-quote actions offered on the closing card.
	PostQuoteActions []string `yaml:"post_quote_actions,omitempty"`

	// Access control inside a group. Empty means any member.
	AllowedUsers []string `yaml:"allowed_users,omitempty"`
}

func (p *QuoteProfile) OffersAction(action string) bool {
	for _, a := range p.PostQuoteActions {
		if a == action {
			return true
		}
	}
	return false
}

func (p *QuoteProfile) userAllowed(userID string) bool {
	if len(p.AllowedUsers) == 0 {
		return true
	}
	for _, u := range p.AllowedUsers {
		if u == userID {
			return true
		}
	}
	return false
}

// DefaultProfile is the full-featured profile used for registered groups
// without an explicit entry and for allow-listed direct-message users.
func DefaultProfile() *QuoteProfile {
	return &QuoteProfile{
		Name:              "default",
		ShowCostInGroup:   true,
		ShowResultInGroup: true,
		PostQuoteActions:  []string{ActionNewQuote, ActionDone},
	}
}

// ProfileRegistry resolves the QuoteProfile for a conversation context.
// Read-only after construction; no locking needed.
type ProfileRegistry struct {
	log     *logger.Logger
	groups  map[string]*QuoteProfile
	dmUsers map[string]struct{}
}

type profileFile struct {
	Groups         map[string]*QuoteProfile `yaml:"groups"`
	DMAllowedUsers []string                 `yaml:"dm_allowed_users"`
}

// NewProfileRegistry builds the registry from a YAML file when path is
// non-empty, otherwise from the comma-separated env fallbacks
// (QUOTE_GROUP_IDS get the default profile, QUOTE_DM_USER_IDS may start
// the flow in direct messages).
func NewProfileRegistry(log *logger.Logger, path string, fallbackGroupIDs, fallbackDMUserIDs []string) (*ProfileRegistry, error) {
	r := &ProfileRegistry{
		log:     log.With("service", "ProfileRegistry"),
		groups:  map[string]*QuoteProfile{},
		dmUsers: map[string]struct{}{},
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read profile file: %w", err)
		}
		var pf profileFile
		if err := yaml.Unmarshal(raw, &pf); err != nil {
			return nil, fmt.Errorf("parse profile file: %w", err)
		}
		for gid, p := range pf.Groups {
			gid = strings.TrimSpace(gid)
			if gid == "" {
				continue
			}
			if p == nil {
				p = DefaultProfile()
			}
			if p.Name == "" {
				p.Name = gid
			}
			if len(p.PostQuoteActions) == 0 {
				p.PostQuoteActions = []string{ActionNewQuote, ActionDone}
			}
			r.groups[gid] = p
		}
		for _, uid := range pf.DMAllowedUsers {
			if uid = strings.TrimSpace(uid); uid != "" {
				r.dmUsers[uid] = struct{}{}
			}
		}
		r.log.Info("quote profiles loaded", "path", path, "groups", len(r.groups), "dm_users", len(r.dmUsers))
		return r, nil
	}

	for _, gid := range fallbackGroupIDs {
		if gid = strings.TrimSpace(gid); gid != "" {
			r.groups[gid] = DefaultProfile()
		}
	}
	for _, uid := range fallbackDMUserIDs {
		if uid = strings.TrimSpace(uid); uid != "" {
			r.dmUsers[uid] = struct{}{}
		}
	}
	return r, nil
}

// Resolve returns the profile for the context, or nil when the context is
// neither a registered group nor an allow-listed direct-message user. A nil
// result means the flow refuses to start.
func (r *ProfileRegistry) Resolve(groupID, userID string) *QuoteProfile {
	if groupID != "" {
		p, ok := r.groups[groupID]
		if !ok {
			return nil
		}
		if !p.userAllowed(userID) {
			return nil
		}
		return p
	}
	if _, ok := r.dmUsers[userID]; ok {
		return DefaultProfile()
	}
	return nil
}
