// Package directory maintains the operator-lookup mirror: a JSON file of
// user profiles with a plan/quota snapshot. It is patched on every relevant
// mutation and rebuilt per user from the persistent store; it is explicitly
// allowed to be stale and must never gate quota or payment decisions.
package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/den4ikerror/ai-crypto-indicator-bot/internal/models"
	"github.com/den4ikerror/ai-crypto-indicator-bot/pkg/logger"
)

type Directory struct {
	mu     sync.Mutex
	path   string
	logger *logger.Logger
}

func New(path string, logger *logger.Logger) *Directory {
	return &Directory{path: path, logger: logger}
}

func (d *Directory) load() map[string]*models.UserProfile {
	profiles := make(map[string]*models.UserProfile)
	data, err := os.ReadFile(d.path)
	if err != nil {
		return profiles
	}
	if err := json.Unmarshal(data, &profiles); err != nil {
		d.logger.Warnw("unreadable user directory, starting empty", "path", d.path, "error", err)
		return make(map[string]*models.UserProfile)
	}
	return profiles
}

func (d *Directory) save(profiles map[string]*models.UserProfile) {
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		d.logger.Errorw("failed to encode user directory", "error", err)
		return
	}
	if err := os.WriteFile(d.path, data, 0o644); err != nil {
		d.logger.Errorw("failed to write user directory", "path", d.path, "error", err)
	}
}

// Track records that a user interacted with the bot, creating the profile
// on first contact and bumping last_seen otherwise.
func (d *Directory) Track(userID int64, username, firstName string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	profiles := d.load()
	key := strconv.FormatInt(userID, 10)
	now := time.Now().UTC()

	if p, ok := profiles[key]; ok {
		p.LastSeen = now
		if username != "" {
			p.Username = username
		}
	} else {
		profiles[key] = &models.UserProfile{
			UserID:    userID,
			Username:  username,
			FirstName: firstName,
			CreatedAt: now,
			LastSeen:  now,
		}
	}
	d.save(profiles)
}

// Refresh patches the user's snapshot from a freshly read entitlement. A nil
// entitlement clears the plan fields.
func (d *Directory) Refresh(userID int64, ent *models.Entitlement) {
	d.mu.Lock()
	defer d.mu.Unlock()

	profiles := d.load()
	p, ok := profiles[strconv.FormatInt(userID, 10)]
	if !ok {
		return
	}
	if ent == nil {
		p.Plan = models.PlanNone
		p.SignalsDaily = 0
		p.SignalsUsedToday = 0
	} else {
		p.Plan = ent.Plan
		p.SignalsDaily = ent.SignalsDaily
		p.SignalsUsedToday = ent.SignalsUsedToday
	}
	d.save(profiles)
}

// FindByID looks a profile up by user id.
func (d *Directory) FindByID(userID int64) (*models.UserProfile, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.load()[strconv.FormatInt(userID, 10)]
	return p, ok
}

// FindByUsername looks a profile up by telegram username, case-insensitive,
// tolerating a leading @.
func (d *Directory) FindByUsername(username string) (*models.UserProfile, bool) {
	want := strings.ToLower(strings.TrimPrefix(username, "@"))
	if want == "" {
		return nil, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.load() {
		if strings.ToLower(p.Username) == want {
			return p, true
		}
	}
	return nil, false
}

// Recent returns up to n profiles ordered by last_seen, newest first.
func (d *Directory) Recent(n int) []*models.UserProfile {
	d.mu.Lock()
	defer d.mu.Unlock()

	profiles := d.load()
	out := make([]*models.UserProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Summary formats one profile line for the admin list view.
func Summary(p *models.UserProfile) string {
	username := p.Username
	if username == "" {
		username = "N/A"
	}
	return fmt.Sprintf("• %d — @%s", p.UserID, username)
}
